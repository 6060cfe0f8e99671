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

//go:embed item.schema.json
var itemSchemaJSON string

// ItemPayload is the wire shape collectors hand to the ingest layer,
// one per discovered item regardless of source.
type ItemPayload struct {
	PayloadVersion string         `json:"payload_version"`
	Source         string         `json:"source"`
	SourceItemID   string         `json:"source_item_id"`
	Title          string         `json:"title"`
	Author         *string        `json:"author,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Stars          *int           `json:"stars,omitempty"`
	URL            *string        `json:"url,omitempty"`
	PostedAt       *string        `json:"posted_at,omitempty"`
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

var knownPayloadSources = map[string]struct{}{
	"github":      {},
	"huggingface": {},
	"hackernews":  {},
	"reddit":      {},
	"replicate":   {},
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateItemPayload(payload json.RawMessage) (*ItemPayload, error) {
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

	var item ItemPayload
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

		if err := compiler.AddResource("item.schema.json", strings.NewReader(itemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("item.schema.json")
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

func validateSemantics(item *ItemPayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}

	source := strings.TrimSpace(item.Source)
	if source == "" {
		return fmt.Errorf("source must not be empty")
	}
	if _, ok := knownPayloadSources[source]; !ok {
		return fmt.Errorf("source %q is not supported", source)
	}

	if strings.TrimSpace(item.SourceItemID) == "" {
		return fmt.Errorf("source_item_id must not be empty")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if item.Stars != nil && *item.Stars < 0 {
		return fmt.Errorf("stars must be >= 0")
	}

	if item.URL != nil {
		if err := validateURI("url", *item.URL); err != nil {
			return err
		}
	}
	if item.PostedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PostedAt)); err != nil {
			return fmt.Errorf("posted_at must be RFC3339: %w", err)
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
