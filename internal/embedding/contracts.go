package embedding

import "context"

// Embedder produces fixed-dimension unit vectors. Dimension is fixed
// for the lifetime of a corpus: changing it invalidates every stored
// vector and is a breaking migration, never handled silently.
type Embedder interface {
	// EmbedText embeds a query or document string.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedImage embeds a prepared image. Providers without native
	// image embeddings may derive the vector from fallbackText (the
	// vision description and keywords for the same image).
	EmbedImage(ctx context.Context, imageBytes []byte, fallbackText string) ([]float32, error)
	Dimension() int
}
