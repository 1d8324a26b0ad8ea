package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the machine-distinguishable category of an engine error.
type ErrorKind string

const (
	KindConnection       ErrorKind = "connection_error"
	KindSchemaDiscovery  ErrorKind = "schema_discovery_error"
	KindPoolExhausted    ErrorKind = "pool_exhausted"
	KindAmbiguousQuery   ErrorKind = "query_classification_ambiguity"
	KindSQLGeneration    ErrorKind = "sql_generation_error"
	KindExecutionTimeout ErrorKind = "execution_timeout"
	KindEmbeddingService ErrorKind = "embedding_service_error"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindNotFound         ErrorKind = "not_found"
	KindQueryExecution   ErrorKind = "query_error"
)

// Sentinels for errors.Is comparisons. Matching is by kind.
var (
	ErrConnection       = &Error{Kind: KindConnection}
	ErrSchemaDiscovery  = &Error{Kind: KindSchemaDiscovery}
	ErrPoolExhausted    = &Error{Kind: KindPoolExhausted}
	ErrAmbiguousQuery   = &Error{Kind: KindAmbiguousQuery}
	ErrSQLGeneration    = &Error{Kind: KindSQLGeneration}
	ErrExecutionTimeout = &Error{Kind: KindExecutionTimeout}
	ErrEmbeddingService = &Error{Kind: KindEmbeddingService}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrQueryExecution   = &Error{Kind: KindQueryExecution}
)

// Error is the single error type surfaced to callers. Detail is safe to show
// to users; Cause is kept for logs only.
type Error struct {
	Kind          ErrorKind
	Detail        string
	UnmappedTerms []string
	Cause         error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Errorf builds an Error with a formatted detail and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// SQLGenerationError reports question terms that could not be bound to the schema.
func SQLGenerationError(detail string, unmapped ...string) *Error {
	e := &Error{Kind: KindSQLGeneration, Detail: detail, UnmappedTerms: unmapped}
	if len(unmapped) > 0 {
		e.Detail = fmt.Sprintf("%s (unmapped terms: %s)", detail, strings.Join(unmapped, ", "))
	}
	return e
}

// KindOf returns the kind of err, or KindQueryExecution for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindQueryExecution
}

// AsError converts any error into an *Error, keeping the original as cause.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindQueryExecution, Detail: "query failed", Cause: err}
}
