package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request payload schemas, compiled once at startup. Validation errors
// surface as 400s before any service code runs.

const eventWriteSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"event_author": {"type": "string"},
		"ts": {"type": "string", "format": "date-time"},
		"event_value": {"type": "string", "minLength": 1},
		"event_free_text": {"type": "string"},
		"event_options": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"event_option_name": {"type": "string", "minLength": 1},
					"event_option_value": {"type": "string"}
				},
				"required": ["event_option_name", "event_option_value"],
				"additionalProperties": false
			}
		}
	},
	"required": ["event_value"],
	"additionalProperties": false
}`

const eventPatchSchema = `{
	"type": "object",
	"properties": {
		"event_author": {"type": "string"},
		"ts": {"type": "string", "format": "date-time"},
		"event_value": {"type": "string", "minLength": 1},
		"event_free_text": {"type": "string"},
		"event_options": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"event_option_name": {"type": "string", "minLength": 1},
					"event_option_value": {"type": "string"}
				},
				"required": ["event_option_name", "event_option_value"],
				"additionalProperties": false
			}
		}
	},
	"minProperties": 1,
	"additionalProperties": false
}`

const auxDataWriteSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"event_id": {"type": "string", "minLength": 1},
		"data_source": {"type": "string", "minLength": 1},
		"data_array": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"data_name": {"type": "string", "minLength": 1},
					"data_value": {"type": "string"},
					"data_uom": {"type": "string"}
				},
				"required": ["data_name", "data_value"],
				"additionalProperties": false
			}
		}
	},
	"required": ["event_id", "data_source"],
	"additionalProperties": false
}`

const auxDataPatchSchema = `{
	"type": "object",
	"properties": {
		"event_id": {"type": "string", "minLength": 1},
		"data_source": {"type": "string", "minLength": 1},
		"data_array": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"data_name": {"type": "string", "minLength": 1},
					"data_value": {"type": "string"},
					"data_uom": {"type": "string"}
				},
				"required": ["data_name", "data_value"],
				"additionalProperties": false
			}
		}
	},
	"minProperties": 1,
	"additionalProperties": false
}`

// Schemas is the compiled payload schema set.
type Schemas struct {
	eventWrite   *jsonschema.Schema
	eventPatch   *jsonschema.Schema
	auxDataWrite *jsonschema.Schema
	auxDataPatch *jsonschema.Schema
}

func CompileSchemas() (*Schemas, error) {
	compile := func(name, src string) (*jsonschema.Schema, error) {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://oceanlog.schemas.local/%s.schema.json", name)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("load %s schema: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		return s, nil
	}

	var ps Schemas
	var err error
	if ps.eventWrite, err = compile("event_write", eventWriteSchema); err != nil {
		return nil, err
	}
	if ps.eventPatch, err = compile("event_patch", eventPatchSchema); err != nil {
		return nil, err
	}
	if ps.auxDataWrite, err = compile("aux_data_write", auxDataWriteSchema); err != nil {
		return nil, err
	}
	if ps.auxDataPatch, err = compile("aux_data_patch", auxDataPatchSchema); err != nil {
		return nil, err
	}
	return &ps, nil
}
