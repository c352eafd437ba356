package llm

import "strings"

// NormalizeKeywords lowercases, trims and de-duplicates keywords while
// preserving the model's order. Empty entries are dropped.
func NormalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ClampConfidence forces a model-reported confidence into [0,1].
func ClampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// CleanModelJSON strips markdown code fences and surrounding prose that
// some models wrap around their JSON payload.
func CleanModelJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.Contains(s, "```") {
		if start := strings.Index(s, "```"); start != -1 {
			rest := s[start+3:]
			rest = strings.TrimPrefix(rest, "json")
			if end := strings.Index(rest, "```"); end != -1 {
				s = rest[:end]
			} else {
				s = rest
			}
		}
	}

	// Trim leading/trailing prose around the outermost JSON object.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
