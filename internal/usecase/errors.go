package usecase

import "errors"

// Failure taxonomy for the scan flows. Handlers map these onto HTTP statuses;
// everything not listed here surfaces as an internal error.
var (
	// ErrInvalidInput indicates a missing or empty upload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates a valid caller who does not own the scan.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates no scan exists for the requested id.
	ErrNotFound = errors.New("scan not found")

	// ErrModelUnavailable indicates the classifier artifact was not loaded.
	ErrModelUnavailable = errors.New("model not loaded")

	// ErrPreprocessing indicates the uploaded image could not be normalized.
	ErrPreprocessing = errors.New("preprocessing failed")

	// ErrInference indicates the classifier call failed.
	ErrInference = errors.New("inference failed")

	// ErrStorage indicates an object store operation failed.
	ErrStorage = errors.New("storage operation failed")

	// ErrPersistence indicates a record store operation failed.
	ErrPersistence = errors.New("persistence operation failed")
)
