package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

const (
	taxonomySchemaName = "taxonomy_sync.schema.json"
	postSchemaName     = "post_sync.schema.json"
)

//go:embed taxonomy_sync.schema.json
var taxonomySchemaJSON string

//go:embed post_sync.schema.json
var postSchemaJSON string

// FieldErrors maps a body field to a human-readable problem. The key "body"
// is used for problems that are not tied to a single field.
type FieldErrors map[string]string

// Error reports why a request body was not admitted.
type Error struct {
	Fields FieldErrors
}

func (e *Error) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid payload"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

var (
	compileOnce        sync.Once
	compiledSchemas    map[string]*jsonschema.Schema
	compiledSchemasErr error
)

type taxonomyPayload struct {
	Taxonomy     string   `json:"taxonomy"`
	SourceTermID objectID `json:"source_term_id"`
	SourceLang   string   `json:"source_lang"`
	TargetTermID objectID `json:"target_term_id"`
	TargetLang   string   `json:"target_lang"`
}

type postPayload struct {
	SourcePostID objectID `json:"source_post_id"`
	SourceLang   string   `json:"source_lang"`
	TargetPostID objectID `json:"target_post_id"`
	TargetLang   string   `json:"target_lang"`
}

// DecodeTaxonomyRequest validates raw against the taxonomy sync schema and
// returns the typed request.
func DecodeTaxonomyRequest(raw []byte) (syncer.TaxonomyRequest, error) {
	var payload taxonomyPayload
	if err := decodeValidated(taxonomySchemaName, raw, &payload); err != nil {
		return syncer.TaxonomyRequest{}, err
	}
	return syncer.TaxonomyRequest{
		Taxonomy:     payload.Taxonomy,
		SourceTermID: int64(payload.SourceTermID),
		SourceLang:   payload.SourceLang,
		TargetTermID: int64(payload.TargetTermID),
		TargetLang:   payload.TargetLang,
	}, nil
}

// DecodePostRequest validates raw against the post sync schema and returns
// the typed request.
func DecodePostRequest(raw []byte) (syncer.PostRequest, error) {
	var payload postPayload
	if err := decodeValidated(postSchemaName, raw, &payload); err != nil {
		return syncer.PostRequest{}, err
	}
	return syncer.PostRequest{
		SourcePostID: int64(payload.SourcePostID),
		SourceLang:   payload.SourceLang,
		TargetPostID: int64(payload.TargetPostID),
		TargetLang:   payload.TargetLang,
	}, nil
}

func decodeValidated(schemaName string, raw []byte, out any) error {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return &Error{Fields: FieldErrors{"body": err.Error()}}
	}

	schema, err := loadSchema(schemaName)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return &Error{Fields: fieldErrors(validationErr)}
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize payload JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, out); err != nil {
		return &Error{Fields: FieldErrors{"body": err.Error()}}
	}
	return nil
}

func loadSchema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		resources := map[string]string{
			taxonomySchemaName: taxonomySchemaJSON,
			postSchemaName:     postSchemaJSON,
		}
		for resource, body := range resources {
			if err := compiler.AddResource(resource, strings.NewReader(body)); err != nil {
				compiledSchemasErr = fmt.Errorf("add schema resource %s: %w", resource, err)
				return
			}
		}

		schemas := make(map[string]*jsonschema.Schema, len(resources))
		for resource := range resources {
			schema, err := compiler.Compile(resource)
			if err != nil {
				compiledSchemasErr = fmt.Errorf("compile schema %s: %w", resource, err)
				return
			}
			schemas[resource] = schema
		}
		compiledSchemas = schemas
	})

	if compiledSchemasErr != nil {
		return nil, compiledSchemasErr
	}
	schema, ok := compiledSchemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %s not initialized", name)
	}
	return schema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

// fieldErrors flattens a validation tree into one message per field. Only
// leaf causes are reported; missing required properties are keyed by name.
func fieldErrors(root *jsonschema.ValidationError) FieldErrors {
	out := FieldErrors{}
	var walk func(ve *jsonschema.ValidationError)
	walk = func(ve *jsonschema.ValidationError) {
		if len(ve.Causes) > 0 {
			for _, cause := range ve.Causes {
				walk(cause)
			}
			return
		}

		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if idx := strings.Index(field, "/"); idx >= 0 {
			field = field[:idx]
		}
		if field == "" {
			if names := missingProperties(ve.Message); len(names) > 0 {
				for _, name := range names {
					out[name] = "is required"
				}
				return
			}
			field = "body"
		}
		if _, exists := out[field]; !exists {
			out[field] = ve.Message
		}
	}
	walk(root)

	if len(out) == 0 {
		out["body"] = root.Message
	}
	return out
}

func missingProperties(message string) []string {
	const prefix = "missing properties:"
	if !strings.HasPrefix(message, prefix) {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(message, prefix), ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.Trim(strings.TrimSpace(part), `'"`)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// objectID accepts a non-negative integer given as a JSON number or a
// numeric string.
type objectID int64

func (id *objectID) UnmarshalJSON(raw []byte) error {
	text := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}

	if value, err := strconv.ParseInt(text, 10, 64); err == nil {
		if value < 0 {
			return fmt.Errorf("id must not be negative")
		}
		*id = objectID(value)
		return nil
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 || value != math.Trunc(value) || value > math.MaxInt64 {
		return fmt.Errorf("id must be a non-negative integer")
	}
	*id = objectID(value)
	return nil
}
