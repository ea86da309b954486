package summarizer

// BuildSummaryJSONSchema returns the JSON Schema (draft 2020-12 subset) every model
// response must satisfy: an array of {sender, subject, summary[]} objects.
func BuildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sender":  map[string]any{"type": "string"},
				"subject": map[string]any{"type": "string"},
				"summary": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"sender", "subject", "summary"},
		},
	}
}

// ResponseSchema is the same shape in Gemini's structured output dialect
// (OpenAPI 3.0 subset with upper-case type names).
func ResponseSchema() map[string]any {
	return map[string]any{
		"type": "ARRAY",
		"items": map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"sender":  map[string]any{"type": "STRING"},
				"subject": map[string]any{"type": "STRING"},
				"summary": map[string]any{
					"type":  "ARRAY",
					"items": map[string]any{"type": "STRING"},
				},
			},
			"required":         []string{"sender", "subject", "summary"},
			"propertyOrdering": []string{"sender", "subject", "summary"},
		},
	}
}
