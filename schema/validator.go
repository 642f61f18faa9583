// Package payloadschema validates article item payloads against the v1
// JSON schema before anything touches the database.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed article_item.schema.json
var articleItemSchemaJSON string

// ExtractionActor is one entity/salience pair in an extraction payload.
type ExtractionActor struct {
	Name     string  `json:"name"`
	Salience float64 `json:"salience"`
}

// ExtractionPayload is the structured output of the entity-extraction
// collaborator. NucleusEntity may be empty when extraction failed to find
// a primary subject; actors/actions/tensions may be missing.
type ExtractionPayload struct {
	NucleusEntity string            `json:"nucleus_entity"`
	Actors        []ExtractionActor `json:"actors,omitempty"`
	Actions       []string          `json:"actions,omitempty"`
	Tensions      []string          `json:"tensions,omitempty"`
	Summary       string            `json:"summary,omitempty"`
}

// ArticleItem is a validated v1 article payload.
type ArticleItem struct {
	PayloadVersion string             `json:"payload_version"`
	Source         string             `json:"source"`
	SourceItemID   string             `json:"source_item_id"`
	Title          string             `json:"title"`
	URL            *string            `json:"url,omitempty"`
	PublishedAt    *string            `json:"published_at,omitempty"`
	BodyText       *string            `json:"body_text,omitempty"`
	Language       *string            `json:"language,omitempty"`
	Extraction     *ExtractionPayload `json:"extraction,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateArticleItemPayload strictly decodes and schema-validates a raw
// article payload, then applies semantic checks the schema cannot express.
func ValidateArticleItemPayload(payload json.RawMessage) (*ArticleItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ArticleItem
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("article_item.schema.json", strings.NewReader(articleItemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("article_item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
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

func validateSemantics(item *ArticleItem) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(item.SourceItemID) == "" {
		return fmt.Errorf("source_item_id must not be empty")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}

	if item.URL != nil {
		if err := validateURI("url", *item.URL); err != nil {
			return err
		}
	}
	if item.PublishedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishedAt)); err != nil {
			return fmt.Errorf("published_at must be RFC3339: %w", err)
		}
	}

	if item.Extraction != nil {
		for i, actor := range item.Extraction.Actors {
			if strings.TrimSpace(actor.Name) == "" {
				return fmt.Errorf("extraction.actors[%d].name must not be empty", i)
			}
			if actor.Salience < 1 || actor.Salience > 5 {
				return fmt.Errorf("extraction.actors[%d].salience must be within 1..5", i)
			}
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
