package config

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	yaml "gopkg.in/yaml.v3"
)

func sessionSchema() string {
	return `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["target_url"],
		"properties": {
			"target_url": {"type": "string", "minLength": 1},
			"api_url": {"type": "string"},
			"depth": {"type": "string", "enum": ["shallow", "deep", "exhaustive"]},
			"auto_register": {"type": "boolean"},
			"test_rbac": {"type": "boolean"},
			"enable_healing": {"type": "boolean"},
			"parallel_workers": {"type": "integer", "minimum": 0, "maximum": 16},
			"capture_screenshots": {"type": "boolean"},
			"output_dir": {"type": "string"},
			"headless": {"type": "boolean"},
			"healing": {
				"type": "object",
				"properties": {
					"enabled": {"type": "boolean"},
					"auto_apply_threshold": {"type": "number", "minimum": 0, "maximum": 1},
					"suggestion_min": {"type": "number", "minimum": 0, "maximum": 1},
					"max_healing_time_ms": {"type": "integer", "minimum": 1},
					"strategies": {
						"type": "array",
						"items": {"type": "string", "enum": ["FALLBACK", "SIMILARITY", "VISUAL", "HISTORICAL"]}
					},
					"max_locators_to_try": {"type": "integer", "minimum": 1},
					"min_similarity_score": {"type": "number", "minimum": 0, "maximum": 1},
					"visual_threshold": {"type": "number", "minimum": 0, "maximum": 1},
					"lookback_days": {"type": "integer", "minimum": 1},
					"min_success_count": {"type": "integer", "minimum": 1}
				},
				"additionalProperties": false
			},
			"ai": {
				"type": "object",
				"required": ["base_url", "model"],
				"properties": {
					"base_url": {"type": "string", "minLength": 1},
					"api_key_env": {"type": "string"},
					"model": {"type": "string", "minLength": 1},
					"timeout_ms": {"type": "integer", "minimum": 1}
				},
				"additionalProperties": false
			},
			"store": {
				"type": "object",
				"required": ["driver", "dsn"],
				"properties": {
					"driver": {"type": "string", "enum": ["sqlite", "postgres"]},
					"dsn": {"type": "string", "minLength": 1}
				},
				"additionalProperties": false
			},
			"panels": {
				"type": "object",
				"required": ["landing", "admin"],
				"properties": {
					"landing": {"$ref": "#/definitions/panel"},
					"user": {"$ref": "#/definitions/panel"},
					"admin": {"$ref": "#/definitions/panel"}
				},
				"additionalProperties": false
			}
		},
		"additionalProperties": false,
		"definitions": {
			"panel": {
				"type": "object",
				"required": ["name", "url"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"url": {"type": "string", "minLength": 1},
					"username": {"type": "string"},
					"password": {"type": "string"}
				},
				"additionalProperties": false
			}
		}
	}`
}

// validateSchema checks session YAML against the embedded JSON Schema.
func validateSchema(raw []byte) error {
	var data interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(sessionSchema())
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, desc := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", desc)
		}
		return fmt.Errorf("config validation failed:\n%s", errMsg)
	}
	return nil
}
