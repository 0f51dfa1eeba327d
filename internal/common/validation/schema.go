// Package validation checks worker inputs against JSON schemas.
package validation

import (
	"fmt"
	"strings"
	"sync"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names.
const (
	RecalcRequest   = "recalc-request"
	RankingsRequest = "rankings-request"
	SearchRequest   = "search-request"
	BackfillRequest = "backfill-request"
)

func userIDProperty() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1, "pattern": `\S`}
}

func categoryProperty() map[string]interface{} {
	enum := append([]interface{}{""}, toInterfaces(models.CategoryNames())...)
	return map[string]interface{}{"type": "string", "enum": enum}
}

var schemaDefs = map[string]map[string]interface{}{
	RecalcRequest: {
		"type":     "object",
		"required": []interface{}{"userId"},
		"properties": map[string]interface{}{
			"userId": userIDProperty(),
		},
	},
	RankingsRequest: {
		"type":     "object",
		"required": []interface{}{"userId"},
		"properties": map[string]interface{}{
			"userId":   userIDProperty(),
			"category": categoryProperty(),
			"limit":    map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 1000},
			"minCount": map[string]interface{}{"type": "integer", "minimum": 0},
		},
	},
	SearchRequest: {
		"type":     "object",
		"required": []interface{}{"userId", "query"},
		"properties": map[string]interface{}{
			"userId":   userIDProperty(),
			"query":    map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 200},
			"category": categoryProperty(),
			"size":     map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		},
	},
	BackfillRequest: {
		"type": "object",
		"properties": map[string]interface{}{
			"pageSize": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 500},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema, len(schemaDefs))
		for name, def := range schemaDefs {
			s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// Validate checks doc against the named schema and returns a VALIDATION_ERROR describing every violation.
func Validate(schemaName string, doc interface{}) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	schema, ok := all[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("unreadable input: %v", err))
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		msgs[i] = desc.String()
	}
	return apperrors.NewValidationError(strings.Join(msgs, "; ")).
		WithMetadata("violations", msgs)
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
