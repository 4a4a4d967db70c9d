// Package validate checks a tool call's arguments against its parameter
// schema at two distinct points: SchemaWellFormed runs once, at tool
// registration time, using the full santhosh-tekuri/jsonschema/v5 compiler
// so a malformed schema is rejected before any call can reach it; Arguments
// runs on every call, implementing the narrower top-level-only contract the
// agent loop actually enforces against a live tool call — required/unknown
// keys and a coarse type check, nothing nested, so error messages stay
// exact and predictable for the model to self-correct from.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaWellFormed compiles schema as a standalone JSON Schema document and
// reports any structural error (bad $ref, invalid type keyword, and so on).
// It does not check any particular argument payload; it runs once per tool
// registration, not per call.
func SchemaWellFormed(schema []byte) error {
	compiler := jsonschema.NewCompiler()
	const resource = "tool-schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if _, err := compiler.Compile(resource); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

// ParamSchema is the flattened top-level shape the per-call validator
// checks against: a map of parameter name to its declared JSON type, which
// of those names are required, and whether the schema forbids keys it
// doesn't declare. It is derived once from a tool's full JSON schema at
// registration time.
type ParamSchema struct {
	Types    map[string]string // parameter name -> "string"|"number"|"integer"|"boolean"|"object"|"array"
	Required []string

	// AdditionalPropertiesForbidden is true only when the schema sets
	// additionalProperties: false. JSON Schema's default (the keyword
	// omitted, or set to true or a schema object) permits undeclared keys,
	// so an unknown argument is only ever an error when this is set.
	AdditionalPropertiesForbidden bool
}

// ParseParamSchema extracts the top-level {type, properties, required,
// additionalProperties} shape from a JSON Schema object. Nested schema
// keywords are ignored: the per-call validator only ever inspects the
// first level of an arguments object, matching the agent loop's validation
// contract exactly.
func ParseParamSchema(schema []byte) (ParamSchema, error) {
	var doc struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required             []string        `json:"required"`
		AdditionalProperties json.RawMessage `json:"additionalProperties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return ParamSchema{}, fmt.Errorf("invalid schema: %w", err)
	}
	ps := ParamSchema{Types: make(map[string]string, len(doc.Properties)), Required: doc.Required}
	for name, p := range doc.Properties {
		ps.Types[name] = p.Type
	}
	if len(doc.AdditionalProperties) > 0 {
		var forbidden bool
		if err := json.Unmarshal(doc.AdditionalProperties, &forbidden); err == nil {
			ps.AdditionalPropertiesForbidden = !forbidden
		}
		// A schema object (rather than a bool) permits additional
		// properties subject to its own constraints; Arguments only does
		// top-level presence/type checks, so that case is left permissive.
	}
	return ps, nil
}

// Arguments checks args against schema using the exact top-level-only
// contract: every Required key must be present, every key in args must be
// declared in schema unless schema.AdditionalPropertiesForbidden is false
// (the JSON Schema default, which permits undeclared keys), and every
// declared value must match its JSON type. All violations are collected —
// the first failing check does not short-circuit the rest — and returned
// in a deterministic order: missing required parameters first (in schema
// order), then unknown parameters (in sorted key order), then type
// mismatches (in sorted key order).
func Arguments(schema ParamSchema, args map[string]any) []string {
	var errs []string

	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			errs = append(errs, fmt.Sprintf("Missing required parameter: %s", req))
		}
	}

	if schema.AdditionalPropertiesForbidden {
		var unknownKeys []string
		for k := range args {
			if _, declared := schema.Types[k]; !declared {
				unknownKeys = append(unknownKeys, k)
			}
		}
		sort.Strings(unknownKeys)
		for _, k := range unknownKeys {
			errs = append(errs, fmt.Sprintf("Unknown parameter: %s", k))
		}
	}

	var typedKeys []string
	for k := range args {
		if _, declared := schema.Types[k]; declared {
			typedKeys = append(typedKeys, k)
		}
	}
	sort.Strings(typedKeys)
	for _, k := range typedKeys {
		want := schema.Types[k]
		if want == "" {
			continue
		}
		if !matchesType(args[k], want) {
			errs = append(errs, fmt.Sprintf("Parameter '%s' should be %s", k, want))
		}
	}

	return errs
}

// matchesType checks a decoded JSON value (as produced by
// encoding/json.Unmarshal into map[string]any) against a JSON Schema
// primitive type name.
func matchesType(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
