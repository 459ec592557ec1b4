// Package failure turns errors and recovered panics into bounded JSON
// payloads suitable for the error columns of sync units, attempts and
// watermarks. Serialize never fails.
package failure

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	MaxMessageChars = 2000
	MaxStackChars   = 8000
)

// Payload is the stored shape of an error.
type Payload struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name,omitempty"`
	Message string          `json:"message,omitempty"`
	Stack   *string         `json:"stack,omitempty"`
	Preview json.RawMessage `json:"preview,omitempty"`
}

// Kinded lets an error choose its own kind, e.g. "UpstreamError".
type Kinded interface {
	Kind() string
}

// Panic wraps a value recovered from a panic together with the stack at the
// point of recovery.
type Panic struct {
	Value interface{}
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Recovered builds a *Panic from a recover() value.
func Recovered(v interface{}) *Panic {
	return &Panic{Value: v, Stack: debug.Stack()}
}

var fallback = datatypes.JSON(`{"kind":"Unserializable","message":"Failed to serialize error"}`)

// Serialize converts v into a JSON payload. Messages and stacks are truncated
// to MaxMessageChars and MaxStackChars.
func Serialize(v interface{}) (out datatypes.JSON) {
	defer func() {
		if r := recover(); r != nil {
			out = fallback
		}
	}()

	b, err := json.Marshal(build(v))
	if err != nil {
		return fallback
	}
	return datatypes.JSON(b)
}

// Decode reads a stored payload back. A nil or malformed column yields nil.
func Decode(raw datatypes.JSON) *Payload {
	if len(raw) == 0 {
		return nil
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}

func build(v interface{}) Payload {
	switch e := v.(type) {
	case nil:
		return Payload{Kind: "UnknownError", Message: "Unknown error"}
	case *Panic:
		stack := truncate(string(e.Stack), MaxStackChars)
		return Payload{
			Kind:    "Panic",
			Name:    fmt.Sprintf("%T", e.Value),
			Message: truncate(fmt.Sprint(e.Value), MaxMessageChars),
			Stack:   &stack,
		}
	case error:
		kind := "Error"
		var k Kinded
		if errors.As(e, &k) {
			kind = k.Kind()
		}
		return Payload{
			Kind:    kind,
			Name:    fmt.Sprintf("%T", rootCause(e)),
			Message: truncate(e.Error(), MaxMessageChars),
		}
	case string:
		return Payload{Kind: "StringError", Message: truncate(e, MaxMessageChars)}
	default:
		preview, err := json.Marshal(e)
		if err != nil {
			return Payload{Kind: "ObjectError", Message: truncate(fmt.Sprintf("%+v", e), MaxMessageChars)}
		}
		if len(preview) > MaxMessageChars {
			return Payload{Kind: "ObjectError", Message: truncate(string(preview), MaxMessageChars)}
		}
		return Payload{Kind: "ObjectError", Preview: preview}
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// truncate cuts s to at most max bytes, backing off to a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...[truncated:%d]", s[:cut], len(s)-cut)
}
