package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates no extractor handles a document's content type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrNotReady indicates no document has been published yet.
	// Queries against an empty cache return this instead of an answer.
	ErrNotReady = errors.New("no document ingested yet")

	// ErrEmptyContent indicates a document produced no usable text.
	ErrEmptyContent = errors.New("document has no extractable content")

	// ErrDocumentMissing indicates the notified document does not exist on disk.
	ErrDocumentMissing = errors.New("document not found on disk")

	// ErrSuperseded indicates an ingestion was cancelled in favour of a newer document.
	ErrSuperseded = errors.New("ingestion superseded by a newer document")

	// ErrModelUnavailable indicates a call to the embedding or generative model failed.
	ErrModelUnavailable = errors.New("model invocation failed")

	// ErrIndexBuild indicates the embedding or index construction failed.
	ErrIndexBuild = errors.New("index build failed")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates a remote host rejected a request with 429.
	ErrRateLimited = errors.New("rate limited")
)

// ExtractionError records a failure to extract one page of a document.
// Page is 1-based; Page 0 means the document could not be opened at all.
type ExtractionError struct {
	Path string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("extract %s page %d: %v", e.Path, e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// FetchError records a failure to download one linked resource.
// StatusCode is zero for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EmptyContentError reports that a whole document yielded no text.
// It is an expected outcome, not a pipeline fault.
type EmptyContentError struct {
	DocumentID string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("%s: %v", e.DocumentID, ErrEmptyContent)
}

// Is matches ErrEmptyContent.
func (e *EmptyContentError) Is(target error) bool { return target == ErrEmptyContent }

// IndexBuildError reports that embedding or index construction failed.
// The ingestion cycle is abandoned and the published snapshot is kept.
type IndexBuildError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build index for %s (%s): %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// Is matches ErrIndexBuild.
func (e *IndexBuildError) Is(target error) bool { return target == ErrIndexBuild }

// ModelInvocationError reports a failed or timed-out model call.
type ModelInvocationError struct {
	Model   string
	Op      string
	Timeout bool
	Err     error
}

func (e *ModelInvocationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Model, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Model, e.Op, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// Is matches ErrModelUnavailable, and context.DeadlineExceeded when the call timed out.
func (e *ModelInvocationError) Is(target error) bool {
	if target == ErrModelUnavailable {
		return true
	}
	return e.Timeout && target == context.DeadlineExceeded
}

// NewModelInvocationError classifies err from a model call made under ctx.
func NewModelInvocationError(ctx context.Context, model, op string, err error) *ModelInvocationError {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &ModelInvocationError{Model: model, Op: op, Timeout: timeout, Err: err}
}
