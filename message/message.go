// Package message classifies the cross-window notifications posted by the
// provider's sign-in window (or synthesized on its behalf).
//
// A notification is accepted only when its origin is one of the two provider
// origins and its data is a string shaped like a JSON object. Accepted
// notifications are decoded and sorted into one of five kinds by their
// "source" field.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Accepted origins.
const (
	OriginApp    = "https://xumm.app"
	OriginOAuth2 = "https://oauth2.xumm.app"
)

// Wire values of the "source" field.
const (
	SourceSignRequest = "xumm_sign_request"
	SourceResolved    = "xumm_sign_request_resolved"
	SourceRejected    = "xumm_sign_request_rejected"
	SourcePopupClosed = "xumm_sign_request_popup_closed"
)

var (
	ErrNotJSON   = errors.New("message: data is not a JSON object")
	ErrOrigin    = errors.New("message: origin not accepted")
	ErrMalformed = errors.New("message: malformed JSON")
)

// Kind is the classification of an incoming message.
type Kind int

const (
	KindUnrecognized Kind = iota
	// KindSignRequest is informational only.
	KindSignRequest
	// KindResolved carries a redirect URI to exchange.
	KindResolved
	// KindRejected carries an error description.
	KindRejected
	// KindPopupClosed carries nothing.
	KindPopupClosed
)

func (k Kind) String() string {
	switch k {
	case KindSignRequest:
		return "sign_request"
	case KindResolved:
		return "sign_request_resolved"
	case KindRejected:
		return "sign_request_rejected"
	case KindPopupClosed:
		return "sign_request_popup_closed"
	default:
		return "unrecognized"
	}
}

// Event is a raw cross-window notification.
type Event struct {
	Origin string
	Data   string
}

// Options is the operation-specific part of a message.
type Options struct {
	FullRedirectURI  string `json:"full_redirect_uri,omitempty"`
	Error            Text   `json:"error,omitempty"`
	ErrorCode        Text   `json:"error_code,omitempty"`
	ErrorDescription Text   `json:"error_description,omitempty"`
}

// Text is a string that also accepts JSON numbers, since providers are not
// consistent about the type of error codes.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

// Message is a classified incoming message.
type Message struct {
	Kind    Kind
	Source  string
	Payload json.RawMessage
	Options *Options
}

type wire struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Options *Options        `json:"options,omitempty"`
}

// LooksLikeJSON reports whether data starts with '{' and ends with '}'.
func LooksLikeJSON(data string) bool {
	return strings.HasPrefix(data, "{") && strings.HasSuffix(data, "}")
}

// Accepted reports whether origin is one of the provider origins.
func Accepted(origin string) bool {
	return origin == OriginApp || origin == OriginOAuth2
}

// Classify validates and decodes ev.
//
// A non-nil error means the event must be ignored. An event that passes
// validation but has an unknown source, or lacks the sub-object its source
// requires, is returned as KindUnrecognized with a nil error.
func Classify(ev Event) (Message, error) {
	if !LooksLikeJSON(ev.Data) {
		return Message{}, ErrNotJSON
	}
	if !Accepted(ev.Origin) {
		return Message{}, fmt.Errorf("%w: %q", ErrOrigin, ev.Origin)
	}
	var w wire
	if err := json.Unmarshal([]byte(ev.Data), &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m := Message{Source: w.Source, Payload: w.Payload, Options: w.Options}
	switch w.Source {
	case SourceSignRequest:
		if present(w.Payload) {
			m.Kind = KindSignRequest
		}
	case SourceResolved:
		if w.Options != nil {
			m.Kind = KindResolved
		}
	case SourceRejected:
		m.Kind = KindRejected
	case SourcePopupClosed:
		m.Kind = KindPopupClosed
	}
	return m, nil
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", "0", `""`:
		return false
	}
	return true
}

// Description returns the rejection text carried by m, or the empty string.
func (m Message) Description() string {
	if m.Options == nil {
		return ""
	}
	return string(m.Options.ErrorDescription)
}

// Resolved builds the event the sign-in window posts after a successful
// redirect back to redirectURI.
func Resolved(redirectURI string) Event {
	return encode(wire{Source: SourceResolved, Options: &Options{FullRedirectURI: redirectURI}})
}

// Rejected builds the event the sign-in window posts when the provider
// reports an error.
func Rejected(errText, code, description string) Event {
	return encode(wire{Source: SourceRejected, Options: &Options{
		Error:            Text(errText),
		ErrorCode:        Text(code),
		ErrorDescription: Text(description),
	}})
}

// PopupClosed builds the event posted when the sign-in window goes away.
func PopupClosed() Event {
	return encode(wire{Source: SourcePopupClosed})
}

func encode(w wire) Event {
	b, err := json.Marshal(w)
	if err != nil {
		// wire only holds strings.
		panic("message: " + err.Error())
	}
	return Event{Origin: OriginOAuth2, Data: string(b)}
}

