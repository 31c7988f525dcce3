package messaging

import (
	"encoding/json"
	"errors"
)

// Payload is the serialized form of every stream entry, shared by producers and consumers.
type Payload struct {
	Header map[string]interface{} `json:"header"`
	Body   map[string]interface{} `json:"body"`
}

// EncodePayload serializes header and body as {"header":...,"body":...}.
// A nil header is written as an empty object.
func EncodePayload(body, header map[string]interface{}) ([]byte, error) {
	if header == nil {
		header = map[string]interface{}{}
	}
	return json.Marshal(Payload{Header: header, Body: body})
}

// DecodePayload parses a serialized payload. Missing payloads and non-object JSON are rejected.
func DecodePayload(b []byte) (Payload, error) {
	var p Payload
	if len(b) == 0 {
		return p, errors.New("empty payload")
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, err
	}
	return p, nil
}
