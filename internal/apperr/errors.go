package apperr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

const (
	CodeUnknownRelation      = "UNKNOWN_RELATION"
	CodeAmbiguousPolymorphic = "AMBIGUOUS_POLYMORPHIC"
	CodeDisallowedCollection = "DISALLOWED_COLLECTION"
	CodeNotJSONField         = "NOT_JSON_FIELD"
	CodeInvalidQuery         = "INVALID_QUERY"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeUnknownCollection    = "UNKNOWN_COLLECTION"
)

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownRelationError(collection, field string) *AppError {
	return &AppError{
		Code:    CodeUnknownRelation,
		Status:  400,
		Message: fmt.Sprintf("Field %q does not exist in collection %q", field, collection),
	}
}

func AmbiguousPolymorphicError(collection, field string) *AppError {
	return &AppError{
		Code:    CodeAmbiguousPolymorphic,
		Status:  400,
		Message: fmt.Sprintf("Polymorphic field %s.%s requires a collection scope (%s:<collection>)", collection, field, field),
	}
}

func DisallowedCollectionError(collection, field, scope string) *AppError {
	return &AppError{
		Code:    CodeDisallowedCollection,
		Status:  400,
		Message: fmt.Sprintf("Collection %q is not allowed for polymorphic field %s.%s", scope, collection, field),
	}
}

func NotJSONFieldError(collection, field string) *AppError {
	return &AppError{
		Code:    CodeNotJSONField,
		Status:  400,
		Message: fmt.Sprintf("Field %s.%s is not a json field and cannot be traversed", collection, field),
	}
}

// UsageError reports a filter that is well formed but used in the wrong place.
func UsageError(msg string) *AppError {
	return &AppError{Code: CodeInvalidQuery, Status: 400, Message: msg}
}

func ValidationError(msg string, details ...ErrorDetail) *AppError {
	if msg == "" {
		msg = "Validation failed"
	}
	return &AppError{
		Code:    CodeValidationFailed,
		Status:  422,
		Message: msg,
		Details: details,
	}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: 403, Message: msg}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: CodeInvalidPayload, Status: 400, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

func UnknownCollectionError(name string) *AppError {
	return &AppError{
		Code:    CodeUnknownCollection,
		Status:  404,
		Message: fmt.Sprintf("Unknown collection: %s", name),
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Invariant panics with an assertion failure. Reserved for states that
// only a bug in this module can produce.
func Invariant(format string, args ...any) {
	panic(errors.AssertionFailedf(format, args...))
}
