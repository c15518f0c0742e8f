package httpserver

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const controlSchema = `{
	"type": "object",
	"required": ["id", "code"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"code": {"type": "string", "minLength": 1},
		"title": {"type": "string"},
		"description": {"type": "string"},
		"implementationGuidance": {"type": "string"},
		"isMandatory": {"type": "boolean"}
	}
}`

const documentSchema = `{
	"type": "object",
	"required": ["id", "content"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"fileName": {"type": "string"},
		"mimeType": {"type": "string"},
		"pageCount": {"type": "integer", "minimum": 0},
		"content": {"type": "string"}
	}
}`

var batchSchema = mustSchema(`{
	"type": "object",
	"required": ["controls"],
	"properties": {
		"frameworkCode": {"type": "string"},
		"controls": {"type": "array", "items": ` + controlSchema + `},
		"documents": {"type": "array", "items": ` + documentSchema + `},
		"options": {
			"type": "object",
			"properties": {
				"skipExistingFindings": {"type": "boolean"},
				"mandatoryControlsOnly": {"type": "boolean"}
			},
			"additionalProperties": false
		}
	}
}`)

var controlRequestSchema = mustSchema(`{
	"type": "object",
	"required": ["control"],
	"properties": {
		"frameworkId": {"type": "string"},
		"control": ` + controlSchema + `,
		"documents": {"type": "array", "items": ` + documentSchema + `}
	}
}`)

var scoreSchema = mustSchema(`{
	"type": "object",
	"required": ["findings"],
	"properties": {
		"findings": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["status"],
				"properties": {
					"status": {"type": "string"},
					"riskLevel": {"type": "string"},
					"isMandatory": {"type": "boolean"}
				}
			}
		}
	}
}`)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("httpserver: bad schema: %v", err))
	}
	return s
}

// validateBody checks a raw JSON body and folds every violation into one message.
func validateBody(s *gojsonschema.Schema, body []byte) error {
	res, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return badRequest("malformed JSON body: %v", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return badRequest("%s", strings.Join(msgs, "; "))
}
