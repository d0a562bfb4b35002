package intake

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema rejects obviously malformed webhook bodies before any
// field extraction happens. It validates the envelope only: the form
// provider has shipped three payload shapes over time, so field content is
// left to the normalizer.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "form webhook envelope",
	"type": "object",
	"properties": {
		"eventId": {"type": "string"},
		"eventType": {"type": "string"},
		"createdAt": {"type": "string"},
		"fields": {"type": ["object", "array"]},
		"fieldsById": {"type": "object"},
		"client_payload": {"type": "object"},
		"data": {
			"type": "object",
			"properties": {
				"createdAt": {"type": "string"},
				"fields": {"type": "array"}
			}
		}
	},
	"required": ["eventType"],
	"anyOf": [
		{"required": ["fields"]},
		{"required": ["client_payload"]},
		{"required": ["data"]}
	]
}`

var envelope *gojsonschema.Schema

func init() {
	var err error
	envelope, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		panic(fmt.Sprintf("intake: envelope schema does not compile: %v", err))
	}
}

func validateEnvelope(body []byte) error {
	result, err := envelope.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, resErr := range result.Errors() {
		msgs = append(msgs, resErr.String())
	}
	return fmt.Errorf("%w: %s", ErrBadEnvelope, strings.Join(msgs, "; "))
}
