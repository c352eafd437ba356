package constants

// Vision-provider constraints for prepared images.
const (
	// MaxImageEdgePx caps the longest edge of a prepared image.
	MaxImageEdgePx = 2200

	// MaxImageBytes caps the encoded size of a prepared image (5 MB).
	MaxImageBytes = 5 * 1024 * 1024

	// JPEGStartQuality is the initial encode quality for prepared images.
	JPEGStartQuality = 90

	// JPEGQualityStep is subtracted from the quality on each re-encode pass.
	JPEGQualityStep = 10

	// JPEGQualityFloor is the lowest quality tried before giving up
	// with ImageTooLarge.
	JPEGQualityFloor = 40
)

// EmbeddingDimension is the fixed vector dimension for the corpus.
// Changing it invalidates every stored vector and requires a migration.
const EmbeddingDimension = 512
