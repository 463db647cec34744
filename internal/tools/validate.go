package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// paramValidator checks call parameters against a manifest's schema and
// applies declared defaults. The schema is compiled once at registration.
type paramValidator struct {
	manifest Manifest
	schema   *jsonschema.Schema
}

func newParamValidator(m Manifest) (*paramValidator, error) {
	doc, err := schemaDoc(m)
	if err != nil {
		return nil, fmt.Errorf("tool %s: build schema: %w", m.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + m.Name + "/params.json"
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("tool %s: add schema resource: %w", m.Name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", m.Name, err)
	}
	return &paramValidator{manifest: m, schema: schema}, nil
}

// schemaDoc renders the manifest's parameter specs as a JSON schema.
func schemaDoc(m Manifest) ([]byte, error) {
	properties := make(map[string]any, len(m.Parameters))
	required := make([]string, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		prop := make(map[string]any)
		switch p.Type {
		case TypeString:
			prop["type"] = "string"
		case TypeInteger:
			prop["type"] = "integer"
		case TypeNumber:
			prop["type"] = "number"
		case TypeBool:
			prop["type"] = "boolean"
		case TypeEnum:
			prop["type"] = "string"
			prop["enum"] = p.EnumValues
		case TypeArray:
			prop["type"] = "array"
		case TypeObject:
			prop["type"] = "object"
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return json.Marshal(doc)
}

// check validates the raw parameters. The returned error names the
// offending parameter.
func (v *paramValidator) check(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	// Round-trip through JSON so the schema sees canonical value types
	// regardless of how the caller built the map.
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("parameters are not serializable: %w", err)
	}
	var canonical any
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return fmt.Errorf("parameters are not serializable: %w", err)
	}
	if err := v.schema.Validate(canonical); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%s", describeViolation(ve))
		}
		return err
	}
	return nil
}

// describeViolation walks to the deepest cause and prefixes the failing
// parameter name when the instance location carries one.
func describeViolation(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc != "" {
		return fmt.Sprintf("parameter %q: %s", loc, ve.Message)
	}
	return ve.Message
}

// applyDefaults returns a copy of params with declared defaults filled in
// for absent optional parameters.
func (v *paramValidator) applyDefaults(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(v.manifest.Parameters))
	for k, val := range params {
		out[k] = val
	}
	for _, p := range v.manifest.Parameters {
		if p.Default == nil {
			continue
		}
		if _, present := out[p.Name]; !present {
			out[p.Name] = p.Default
		}
	}
	return out
}
