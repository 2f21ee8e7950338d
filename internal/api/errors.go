package api

import "fmt"

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	// KindServer means the backend answered non-2xx with a usable body.
	KindServer ErrorKind = "server_error"
	// KindNetwork means the request never completed (transport, timeout).
	KindNetwork ErrorKind = "network_error"
	// KindParse means the backend answered but the body was malformed.
	KindParse ErrorKind = "parse_error"
)

// Error is the structured failure surfaced by every client method.
type Error struct {
	Kind   ErrorKind
	Detail string
	Status int // HTTP status when known, 0 otherwise
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func serverErr(status int, detail string) *Error {
	if detail == "" {
		detail = "server error"
	}
	return &Error{Kind: KindServer, Detail: detail, Status: status}
}

func networkErr(err error) *Error {
	return &Error{Kind: KindNetwork, Detail: err.Error()}
}

func parseErr(status int) *Error {
	return &Error{Kind: KindParse, Detail: "malformed server response", Status: status}
}
