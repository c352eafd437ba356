package llm

import "context"

// VisionResult is the normalized shape we want from the vision model.
type VisionResult struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Confidence  float32  `json:"confidence,omitempty"` // 0..1, model-reported
}

// VisionDescriber is the interface the pipeline depends on. Errors must
// be classified (transient vs permanent vs schema) via
// common.ProcessingError so the retry policy can act on them.
type VisionDescriber interface {
	Describe(ctx context.Context, imageBytes []byte) (VisionResult, []byte /*rawJSON*/, error)
}

// ModelVersion reports the tag persisted with each metadata row.
type ModelVersion interface {
	ModelVersion() string
}
