package handlers

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// submitSchemaJSON is the submission contract. Validation happens before any
// credit accounting so a malformed request never reaches the ledger.
const submitSchemaJSON = `{
  "type": "object",
  "required": ["advertorial_type"],
  "additionalProperties": false,
  "properties": {
    "advertorial_type": {"type": "string", "enum": ["listicle", "advertorial"]},
    "template_id": {"type": "string", "format": "uuid"},
    "sales_page_url": {"type": "string", "pattern": "^https?://"},
    "brand_info": {"type": "object"},
    "locale": {"type": "string", "minLength": 2, "maxLength": 8}
  }
}`

var submitSchema = jsonschema.MustCompileString("submit.json", submitSchemaJSON)

// validateSubmission checks raw against the submission schema.
func validateSubmission(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return submitSchema.Validate(v)
}
