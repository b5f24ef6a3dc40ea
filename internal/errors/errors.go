package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrInvalidQuery is returned when a query cannot be interpreted at all
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDatasetUnavailable is returned when no dataset snapshot is loaded
	// or a swap is in progress
	ErrDatasetUnavailable = errors.New("dataset unavailable")

	// ErrDatasetNotFound is returned when a named dataset is not found
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetAlreadyExists is returned when trying to register a dataset
	// under a name that is already taken
	ErrDatasetAlreadyExists = errors.New("dataset already exists")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrIngestFailed is returned when a roster source cannot be read
	ErrIngestFailed = errors.New("ingest failed")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// InvalidQueryError represents an uninterpretable query with context.
// Degraded queries (unknown trailing text, malformed age predicates) are not
// invalid; only an empty target with no out-of-band indication is.
type InvalidQueryError struct {
	Query  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("invalid query '%s': %s", e.Query, e.Reason)
	}
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// NewInvalidQueryError creates a new InvalidQueryError
func NewInvalidQueryError(query, reason string) *InvalidQueryError {
	return &InvalidQueryError{Query: query, Reason: reason}
}

// DatasetUnavailableError represents a missing or swapping snapshot. The
// transport layer may retry; the engine never does.
type DatasetUnavailableError struct {
	Dataset string
	State   string
}

func (e *DatasetUnavailableError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("dataset '%s' unavailable: %s", e.Dataset, e.State)
	}
	return fmt.Sprintf("dataset unavailable: %s", e.State)
}

func (e *DatasetUnavailableError) Is(target error) bool {
	return target == ErrDatasetUnavailable
}

// NewDatasetUnavailableError creates a new DatasetUnavailableError
func NewDatasetUnavailableError(dataset, state string) *DatasetUnavailableError {
	return &DatasetUnavailableError{Dataset: dataset, State: state}
}

// DatasetNotFoundError represents a dataset not found error with context
type DatasetNotFoundError struct {
	Dataset string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset named '%s' not found", e.Dataset)
}

func (e *DatasetNotFoundError) Is(target error) bool {
	return target == ErrDatasetNotFound
}

// NewDatasetNotFoundError creates a new DatasetNotFoundError
func NewDatasetNotFoundError(dataset string) *DatasetNotFoundError {
	return &DatasetNotFoundError{Dataset: dataset}
}

// DatasetAlreadyExistsError represents a name collision between datasets
type DatasetAlreadyExistsError struct {
	Dataset string
}

func (e *DatasetAlreadyExistsError) Error() string {
	return fmt.Sprintf("dataset named '%s' already exists", e.Dataset)
}

func (e *DatasetAlreadyExistsError) Is(target error) bool {
	return target == ErrDatasetAlreadyExists
}

// NewDatasetAlreadyExistsError creates a new DatasetAlreadyExistsError
func NewDatasetAlreadyExistsError(dataset string) *DatasetAlreadyExistsError {
	return &DatasetAlreadyExistsError{Dataset: dataset}
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// IngestError represents a failed roster source read with context
type IngestError struct {
	Source string
	Cause  error
}

func (e *IngestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ingest of '%s' failed: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("ingest of '%s' failed", e.Source)
}

func (e *IngestError) Is(target error) bool {
	return target == ErrIngestFailed
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}

// NewIngestError creates a new IngestError
func NewIngestError(source string, cause error) *IngestError {
	return &IngestError{Source: source, Cause: cause}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
