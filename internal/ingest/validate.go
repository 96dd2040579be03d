package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mattjoyce/lyftr/internal/store"
)

// MaxTextLength caps the text field, counted in characters.
const MaxTextLength = 4096

const schemaURL = "https://lyftr.local/schemas/message.json"

var payloadSchemaText = fmt.Sprintf(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["message_id", "from", "to", "ts", "text"],
  "properties": {
    "message_id": {"type": "string", "minLength": 1},
    "from":       {"type": "string", "minLength": 1},
    "to":         {"type": "string", "minLength": 1},
    "ts":         {"type": "string", "minLength": 1},
    "text":       {"type": "string", "maxLength": %d}
  }
}`, MaxTextLength)

var payloadSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchemaText))
	if err != nil {
		panic(fmt.Sprintf("parse payload schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("add payload schema: %v", err))
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile payload schema: %v", err))
	}
	return sch
}

type payload struct {
	MessageID string
	From      string
	To        string
	TS        string
	Text      string
}

// payloadFromInstance reads the fields out of the instance the schema
// accepted. Keys match exactly, so a case variant such as "MESSAGE_ID" is an
// ignored extra field and cannot replace a checked value.
func payloadFromInstance(inst any) payload {
	obj, _ := inst.(map[string]any)
	str := func(key string) string {
		v, _ := obj[key].(string)
		return v
	}
	return payload{
		MessageID: str("message_id"),
		From:      str("from"),
		To:        str("to"),
		TS:        str("ts"),
		Text:      str("text"),
	}
}

// parsePayload validates body and returns the decoded payload with its
// parsed timestamp. A non-nil error is a validation failure whose text is
// safe to return to the sender.
func parsePayload(body []byte) (payload, time.Time, error) {
	var p payload
	if len(bytes.TrimSpace(body)) == 0 {
		return p, time.Time{}, errors.New("empty body")
	}
	if !utf8.Valid(body) {
		return p, time.Time{}, errors.New("body is not valid UTF-8")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return p, time.Time{}, errors.New("body is not valid JSON")
	}
	if err := payloadSchema.Validate(inst); err != nil {
		return p, time.Time{}, schemaReason(err)
	}

	p = payloadFromInstance(inst)

	ts, err := time.Parse(time.RFC3339Nano, p.TS)
	if err != nil {
		return p, time.Time{}, fmt.Errorf("ts %q is not an RFC 3339 timestamp", p.TS)
	}
	if ts.Before(store.MinTimestamp) || ts.After(store.MaxTimestamp) {
		return p, time.Time{}, fmt.Errorf("ts %q is out of range", p.TS)
	}
	return p, ts, nil
}

// schemaReason flattens the multi-line schema error into one line of
// "at '<path>': <problem>" entries.
func schemaReason(err error) error {
	var parts []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "jsonschema") {
			continue
		}
		parts = append(parts, strings.TrimPrefix(line, "- "))
	}
	if len(parts) == 0 {
		return err
	}
	return errors.New(strings.Join(parts, "; "))
}
