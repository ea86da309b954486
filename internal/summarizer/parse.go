package summarizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"mail-summary-service/internal/model"
)

// ParseError 模型返回的内容不是合法 JSON 或不符合 schema
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string     { return "invalid model response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error     { return e.Err }
func (e *ParseError) ErrorType() string { return "invalid_response" }

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(BuildSummaryJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("summary.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("summary.json")
})

// Parse validates raw against the summary schema and decodes it.
func Parse(raw []byte) ([]model.SummaryEntry, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("json does not match schema: %w", err)}
	}

	entries := make([]model.SummaryEntry, 0)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &ParseError{Err: err}
	}
	return entries, nil
}
