package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/photosmith/photosmith/internal/common"
	"github.com/photosmith/photosmith/internal/llm"
)

const systemPrompt = "You are a photo librarian. Describe the photo for search: " +
	"what is shown, the setting, notable objects, colors and mood. " +
	"Return ONLY JSON matching the provided schema. " +
	"'description' is 1-3 plain sentences. " +
	"'keywords' is up to 25 short lowercase tags, most specific first. " +
	"'confidence' is your 0..1 certainty about the description. " +
	"Never output null. If a field is unknown, omit it."

// Describe implements llm.VisionDescriber over chat/completions with
// the prepared JPEG attached as a data URL.
func (c *Client) Describe(ctx context.Context, imageBytes []byte) (llm.VisionResult, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("vision.describe.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(imageBytes),
	)

	schema := llm.BuildVisionJSONSchema()
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageBytes)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt + "\n\nJSON Schema:\n" + mustJSON(schema)},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": "Describe this photo."},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("vision.describe.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResult{}, raw, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("vision.describe.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResult{}, raw, common.Permanentf(err, "decode provider response")
	}
	if len(cc.Choices) == 0 {
		c.log.Error("vision.describe.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResult{}, raw, common.Permanentf(nil, "no choices in provider response")
	}

	content := llm.CleanModelJSON(cc.Choices[0].Message.Content)
	rawContent := []byte(content)

	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		c.log.Error("vision.describe.schema_validation_failed",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResult{}, rawContent,
			common.NewProcessingError(common.KindSchemaValidation, "vision response schema mismatch", err)
	}

	var out llm.VisionResult
	if err := json.Unmarshal(rawContent, &out); err != nil {
		c.log.Error("vision.describe.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResult{}, rawContent, common.Permanentf(err, "unmarshal vision result")
	}
	out.Keywords = llm.NormalizeKeywords(out.Keywords)
	out.Confidence = llm.ClampConfidence(out.Confidence)

	c.log.Info("vision.describe.ok",
		"req_id", rid,
		"description_len", len(out.Description),
		"keywords", len(out.Keywords),
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
