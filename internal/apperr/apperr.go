// Package apperr defines the typed error kinds surfaced by kura's store, ingest and RAG operations.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindCorruptStore
	KindExtraction
	KindEmbedding
	KindGeneration
	KindIO
	KindValidation
	KindCancelled
)

var kindCodes = map[Kind]string{
	KindUnknown:      "internal_error",
	KindNotFound:     "not_found",
	KindCorruptStore: "corrupt_store",
	KindExtraction:   "extraction_error",
	KindEmbedding:    "embedding_error",
	KindGeneration:   "generation_error",
	KindIO:           "io_error",
	KindValidation:   "validation_error",
	KindCancelled:    "cancelled",
}

var kindStatus = map[Kind]int{
	KindUnknown:      http.StatusInternalServerError,
	KindNotFound:     http.StatusNotFound,
	KindCorruptStore: http.StatusConflict,
	KindExtraction:   http.StatusUnprocessableEntity,
	KindEmbedding:    http.StatusBadGateway,
	KindGeneration:   http.StatusServiceUnavailable,
	KindIO:           http.StatusInsufficientStorage,
	KindValidation:   http.StatusBadRequest,
	KindCancelled:    http.StatusRequestTimeout,
}

// Code returns the stable machine-readable code of k.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

// HTTPStatus returns the HTTP status code that represents k.
func (k Kind) HTTPStatus() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// KindFromCode is the inverse of Code; unknown codes map to KindUnknown.
func KindFromCode(code string) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	return k.Code()
}

// Error is a classified failure. Op names the operation, Store the store name (may be empty).
type Error struct {
	Kind  Kind
	Op    string
	Store string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Code()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Store != "" {
		msg += fmt.Sprintf(" (store %q)", e.Store)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against another *Error of the same kind, so sentinel-style
// comparisons like errors.Is(err, &apperr.Error{Kind: apperr.KindNotFound}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && (t.Store == "" || t.Store == e.Store)
}

// New returns an *Error of the given kind.
func New(kind Kind, op, store string, err error) *Error {
	return &Error{Kind: kind, Op: op, Store: store, Err: err}
}

// Classify wraps err as kind, except that context cancellation anywhere in the chain
// becomes KindCancelled and an already classified error keeps its kind.
func Classify(kind Kind, op, store string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(KindCancelled, op, store, err)
	}
	return New(kind, op, store, err)
}

// KindOf returns the kind of the first *Error in err's chain, KindCancelled for bare
// context errors and KindUnknown otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// NotFound reports a store that does not exist.
func NotFound(op, store string, err error) error {
	return New(KindNotFound, op, store, err)
}

// CorruptStore reports store files that exist but cannot be loaded or disagree with each other.
func CorruptStore(op, store string, err error) error {
	return New(KindCorruptStore, op, store, err)
}

// Extraction reports a document whose text could not be extracted.
// Like the other provider and I/O constructors it defers to Classify.
func Extraction(op, store string, err error) error {
	return Classify(KindExtraction, op, store, err)
}

// Embedding reports a failure of the embedding provider.
func Embedding(op, store string, err error) error {
	return Classify(KindEmbedding, op, store, err)
}

// Generation reports a failure of the answer-generation model.
func Generation(op, store string, err error) error {
	return Classify(KindGeneration, op, store, err)
}

// IO reports a filesystem failure while reading or writing a store.
func IO(op, store string, err error) error {
	return Classify(KindIO, op, store, err)
}

// Validation returns a KindValidation error with a formatted message.
func Validation(op, store, format string, args ...any) error {
	return New(KindValidation, op, store, fmt.Errorf(format, args...))
}

// Cancelled reports work abandoned because the caller's context ended.
func Cancelled(op, store string, err error) error {
	return New(KindCancelled, op, store, err)
}

// WithStore fills in the store name of a classified error that lacks one.
func WithStore(err error, store string) error {
	var ae *Error
	if !errors.As(err, &ae) || ae.Store != "" {
		return err
	}
	cp := *ae
	cp.Store = store
	return &cp
}
