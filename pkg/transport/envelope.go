package transport

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

// codec is the JSON implementation used for envelopes and payloads.
var codec = sonic.ConfigStd

// Unmarshal decodes data with the same codec the client uses, for payloads
// that callers take as json.RawMessage and decode later.
func Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

// Success codes carried by an Envelope.
const (
	CodeOK      = 0
	CodeSuccess = 200
)

// Envelope is the canonical response wrapper every API response is
// normalized into.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// OK reports whether the envelope signals success.
func (e *Envelope) OK() bool {
	return e.Code == CodeOK || e.Code == CodeSuccess
}

// Decode unmarshals Data into v. A null or absent payload leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if v == nil || isNull(e.Data) {
		return nil
	}
	return codec.Unmarshal(e.Data, v)
}

// Normalize turns a raw 2xx body into an Envelope.
//
// Bodies that already have the envelope shape (a JSON object with a numeric
// "code" and a "message" or "data" member) pass through. Anything else is
// wrapped as {code:200, message:"success", data:<body>}; non-JSON bodies
// become a JSON string so text endpoints survive the same path.
func Normalize(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Envelope{Code: CodeSuccess, Message: "success", Data: json.RawMessage("null")}, nil
	}

	if !json.Valid(trimmed) {
		data, err := codec.Marshal(string(body))
		if err != nil {
			return nil, err
		}
		return &Envelope{Code: CodeSuccess, Message: "success", Data: data}, nil
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := codec.Unmarshal(trimmed, &fields); err == nil && looksEnveloped(fields) {
			var env Envelope
			if err := codec.Unmarshal(trimmed, &env); err == nil {
				if env.Data == nil {
					env.Data = json.RawMessage("null")
				}
				return &env, nil
			}
		}
	}

	data := make(json.RawMessage, len(trimmed))
	copy(data, trimmed)
	return &Envelope{Code: CodeSuccess, Message: "success", Data: data}, nil
}

func looksEnveloped(fields map[string]json.RawMessage) bool {
	code, ok := fields["code"]
	if !ok {
		return false
	}
	var n json.Number
	if err := codec.Unmarshal(code, &n); err != nil {
		return false
	}
	if _, err := n.Int64(); err != nil {
		return false
	}
	_, hasMessage := fields["message"]
	_, hasData := fields["data"]
	return hasMessage || hasData
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
