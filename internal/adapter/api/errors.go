package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed remote call.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNetworkUnreachable
	KindAuthenticationFailed
	KindValidationFailed
	KindNotFound
	KindServerFault
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindValidationFailed:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindServerFault:
		return "server_fault"
	default:
		return "unexpected"
	}
}

// Sentinels for errors.Is against *Error.
var (
	ErrNetworkUnreachable = errors.New("remote api unreachable")
	ErrUnauthorized       = errors.New("remote api rejected credentials")
	ErrValidation         = errors.New("remote api rejected input")
	ErrNotFound           = errors.New("remote resource not found")
	ErrServerFault        = errors.New("remote api server fault")
)

// Error is returned for every non-2xx response and every transport failure.
type Error struct {
	Kind    Kind
	Status  int
	Method  string
	Path    string
	Message string
	// Fields maps a request field to its validation message when the API reports one.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetworkUnreachable:
		return e.Kind == KindNetworkUnreachable
	case ErrUnauthorized:
		return e.Kind == KindAuthenticationFailed
	case ErrValidation:
		return e.Kind == KindValidationFailed
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrServerFault:
		return e.Kind == KindServerFault
	}
	return false
}

// Detail returns the server-provided message, or fallback when the server sent none.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthenticationFailed
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return KindValidationFailed
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerFault
	default:
		return KindUnexpected
	}
}

// parseDetail understands FastAPI error bodies: {"detail": "msg"} and
// {"detail": [{"loc": ["body", "title"], "msg": "..."}]}.
func parseDetail(body []byte) (string, map[string]string) {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil
	}
	if len(envelope.Detail) == 0 {
		return envelope.Message, nil
	}

	var msg string
	if err := json.Unmarshal(envelope.Detail, &msg); err == nil {
		return msg, nil
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err != nil || len(items) == 0 {
		return "", nil
	}

	fields := make(map[string]string, len(items))
	msgs := make([]string, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.Msg)
		if len(it.Loc) == 0 {
			continue
		}
		if name, ok := it.Loc[len(it.Loc)-1].(string); ok {
			fields[name] = it.Msg
		}
	}
	return strings.Join(msgs, "; "), fields
}
