package config

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Property names are lowercase: documents are key-folded before validation.
const fleaSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "onlyfoundinraidforfleaoffers": {"type": "boolean"},
    "decreasemultiplierpercentage": {"type": "number", "minimum": 0, "maximum": 100},
    "regeneratemultiplierpercentage": {"type": "number", "minimum": 0, "maximum": 100},
    "moremultiplierperbuying": {"type": "number", "minimum": 0},
    "moremultiplierperselling": {"type": "number", "minimum": 0},
    "updateperiod": {"type": "integer", "minimum": 1},
    "decaymode": {"type": "string", "pattern": "^(?i)(relax|stepped)$"},
    "increasemultiplierperitem": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "increasemultiplierperitemcategory": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    }
  }
}`

var (
	fleaSchemaOnce sync.Once
	fleaSchema     *jsonschema.Schema
	fleaSchemaErr  error
)

func validateFlea(doc map[string]any) error {
	fleaSchemaOnce.Do(func() {
		fleaSchema, fleaSchemaErr = jsonschema.CompileString("dynamic-flea-config.json", fleaSchemaJSON)
	})
	if fleaSchemaErr != nil {
		return fleaSchemaErr
	}
	return fleaSchema.Validate(doc)
}
