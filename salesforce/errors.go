package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by data operations called before a
// successful Authenticate. No remote call is made in that case.
var ErrNotAuthenticated = errors.New("salesforce: client is not authenticated")

// ErrorKind is the closed taxonomy of remote-reported failures.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindAuthenticationFailure
	KindInvalidPassword
	KindInvalidClient
	KindInvalidField
	KindInvalidFieldForInsertUpdate
	KindNotFound
	KindEntityIsDeleted
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindInvalidPassword:
		return "InvalidPassword"
	case KindInvalidClient:
		return "InvalidClient"
	case KindInvalidField:
		return "InvalidField"
	case KindInvalidFieldForInsertUpdate:
		return "InvalidFieldForInsertUpdate"
	case KindNotFound:
		return "NotFound"
	case KindEntityIsDeleted:
		return "EntityIsDeleted"
	default:
		return "Generic"
	}
}

// APIError is a failure reported by Salesforce itself, as opposed to a
// transport or serialization failure. Every non-2xx response maps to exactly
// one kind plus the remote message.
type APIError struct {
	Kind       ErrorKind
	RemoteCode string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("salesforce: %s (%s): %s", e.Kind, e.RemoteCode, e.Message)
}

// tokenErrorKinds maps the error field of a failed token exchange response.
// Keyed by the exact remote error-code string.
var tokenErrorKinds = map[string]ErrorKind{
	"invalid_grant":     KindAuthenticationFailure,
	"invalid_password":  KindInvalidPassword,
	"invalid_client_id": KindInvalidClient,
	"invalid_client":    KindInvalidClient,
}

// restErrorKinds maps the errorCode field of a failed REST response.
// MALFORMED_ID deliberately shares a kind with ENTITY_IS_DELETED: on delete
// the remote reports malformed ids and already-deleted rows interchangeably,
// and this client preserves that conflation.
var restErrorKinds = map[string]ErrorKind{
	"INVALID_FIELD":                   KindInvalidField,
	"INVALID_FIELD_FOR_INSERT_UPDATE": KindInvalidFieldForInsertUpdate,
	"NOT_FOUND":                       KindNotFound,
	"ENTITY_IS_DELETED":               KindEntityIsDeleted,
	"MALFORMED_ID":                    KindEntityIsDeleted,
}

func mapTokenError(status int, code, description string) *APIError {
	kind, ok := tokenErrorKinds[code]
	if !ok {
		kind = KindGeneric
	}
	return &APIError{
		Kind:       kind,
		RemoteCode: code,
		Message:    description,
		StatusCode: status,
	}
}

// mapRestError translates a non-2xx REST response body into an APIError.
// Unrecognized codes and unparsable bodies map to KindGeneric carrying the
// raw message verbatim.
func mapRestError(status int, body []byte) *APIError {
	var remote []RestError
	if err := json.Unmarshal(body, &remote); err != nil || len(remote) == 0 {
		return &APIError{
			Kind:       KindGeneric,
			Message:    string(body),
			StatusCode: status,
		}
	}
	first := remote[0]
	kind, ok := restErrorKinds[first.ErrorCode]
	if !ok {
		kind = KindGeneric
	}
	return &APIError{
		Kind:       kind,
		RemoteCode: first.ErrorCode,
		Message:    first.Message,
		StatusCode: status,
	}
}
