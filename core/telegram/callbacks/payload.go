// Package callbacks encodes and decodes inline button payloads of the form
// domain:action:target:value.
package callbacks

import (
	"errors"
	"strings"
)

// MaxDataLen is the Bot API limit for callback_data in bytes.
const MaxDataLen = 64

// ErrMalformed is returned for payloads without a domain and action.
var ErrMalformed = errors.New("callbacks: malformed payload")

// Payload is a decoded callback. Value may itself contain colons.
type Payload struct {
	Domain string
	Action string
	Target string
	Value  string
}

// New builds a payload.
func New(domain, action, target, value string) Payload {
	return Payload{Domain: domain, Action: action, Target: target, Value: value}
}

// String encodes p as domain:action:target:value.
func (p Payload) String() string {
	return p.Domain + ":" + p.Action + ":" + p.Target + ":" + p.Value
}

// Fits reports whether the encoded payload is within MaxDataLen.
func (p Payload) Fits() bool {
	return len(p.String()) <= MaxDataLen
}

// Parse decodes raw callback data. Missing trailing segments are empty.
func Parse(data string) (Payload, error) {
	data = strings.TrimPrefix(data, "\f")
	parts := strings.SplitN(data, ":", 4)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Payload{}, ErrMalformed
	}
	p := Payload{Domain: parts[0], Action: parts[1]}
	if len(parts) > 2 {
		p.Target = parts[2]
	}
	if len(parts) > 3 {
		p.Value = parts[3]
	}
	return p, nil
}
