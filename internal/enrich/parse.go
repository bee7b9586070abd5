package enrich

import (
	"encoding/json"
	"strings"
)

// stripFence removes a markdown code fence wrapping the response text,
// if present.
func stripFence(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

// parseResults extracts the results array from a resolver response.
// Malformed or absent structure yields nil: a parse failure is a soft
// miss for the batch, never an error.
func parseResults(text string) []json.RawMessage {
	if text == "" {
		return nil
	}
	var payload struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &payload); err != nil {
		return nil
	}
	return payload.Results
}
