package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReportJSONSchema describes the assembled report. Every info key is present
// and either a string or null; testResults is always an array.
func BuildReportJSONSchema() map[string]any {
	nullable := map[string]any{"type": []string{"string", "null"}}
	infoObject := func(keys ...string) map[string]any {
		props := make(map[string]any, len(keys))
		for _, k := range keys {
			props[k] = nullable
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           props,
			"required":             keys,
		}
	}

	testResult := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"category":       map[string]any{"type": "string", "minLength": 1},
			"testName":       map[string]any{"type": "string", "minLength": 1},
			"result":         map[string]any{"type": "string", "minLength": 1},
			"unit":           map[string]any{"type": "string"},
			"referenceRange": map[string]any{"type": "string"},
			"flag":           nullable,
		},
		"required": []string{"category", "testName", "result"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"patientInfo": infoObject("name", "patientId", "age", "gender", "phone"),
			"labInfo":     infoObject("labId", "requestedBy", "requestedDate", "collectedDate", "analysisDate", "validatedBy"),
			"testResults": map[string]any{"type": "array", "items": testResult},
		},
		"required": []string{"patientInfo", "labInfo", "testResults"},
	}
}

var compiledReportSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(BuildReportJSONSchema())
})

// ValidateJSON validates a serialized report (or a corrected snapshot) against the report schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledReportSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("report.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("report.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
