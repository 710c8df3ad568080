package pipeline

import "net/http"

// Kind classifies a pipeline failure. Everything before the submission
// is stored maps to an HTTP status via Status; nothing after storage
// may surface as one.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindUpstream
	KindInternal
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errNotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func errUnauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func errForbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func errBadRequest(msg string) *Error   { return &Error{Kind: KindBadRequest, Message: msg} }
func errInternal(msg string) *Error     { return &Error{Kind: KindInternal, Message: msg} }
