package models

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is; ErrorKind maps them to the
// stable names reported over the API.
var (
	// ErrUnsupportedFormat indicates a document format other than PDF or HTML.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrIngestion indicates a document could not be read or produced no usable text.
	ErrIngestion = errors.New("ingestion failed")

	// ErrEvaluation indicates the calculator rejected an expression.
	ErrEvaluation = errors.New("evaluation error")

	// ErrUnknownTool indicates the model asked for a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrReasoningLimitExceeded indicates the agent loop hit its iteration bound.
	ErrReasoningLimitExceeded = errors.New("reasoning limit exceeded")

	// ErrRetrievalUnavailable indicates the vector index is empty or absent.
	// It is a valid state, not a fault.
	ErrRetrievalUnavailable = errors.New("no documents in vectorstore")

	// ErrExternalService indicates a model, embedding or network outage.
	ErrExternalService = errors.New("external service failure")

	// ErrPersistence indicates an index or checkpoint write failed.
	ErrPersistence = errors.New("persistence failure")

	// ErrEmbeddingMismatch indicates vectors from a different model or dimension
	// than the ones already in the index.
	ErrEmbeddingMismatch = errors.New("embedding model mismatch")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// IngestionError carries the path of the document that failed to load.
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingesting %s: %v", e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIngestion) match any IngestionError.
func (e *IngestionError) Is(target error) bool { return target == ErrIngestion }

// EvaluationError reports why an arithmetic expression was rejected.
type EvaluationError struct {
	Expression string
	Reason     string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate %q: %s", e.Expression, e.Reason)
}

func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnsupportedFormat, "UnsupportedFormat"},
	{ErrIngestion, "IngestionError"},
	{ErrEvaluation, "EvaluationError"},
	{ErrUnknownTool, "UnknownTool"},
	{ErrReasoningLimitExceeded, "ReasoningLimitExceeded"},
	{ErrRetrievalUnavailable, "RetrievalUnavailable"},
	{ErrEmbeddingMismatch, "EmbeddingMismatch"},
	{ErrPersistence, "PersistenceFailure"},
	{ErrExternalService, "ExternalServiceFailure"},
	{ErrInvalidInput, "InvalidInput"},
}

// ErrorKind returns the stable kind name for err, or "Internal" when err is
// not part of the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
