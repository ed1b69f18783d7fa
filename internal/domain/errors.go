package domain

import "errors"

var (
	// ErrDatasetNotFound indicates a load or delete target that does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidInput indicates an empty passage list, empty question list or bad name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexNotBuilt indicates a query before any successful index or load.
	ErrIndexNotBuilt = errors.New("index not built, process documents or load a dataset first")

	// ErrModelLoad indicates the embedding or language model could not be constructed.
	ErrModelLoad = errors.New("model load failed")

	// ErrIndexingFailure indicates the engine failed while building an index.
	ErrIndexingFailure = errors.New("indexing failed")

	// ErrGenerationFailure indicates the language model call failed.
	ErrGenerationFailure = errors.New("answer generation failed")

	// ErrOperationInProgress indicates that another index, load, delete or clear
	// operation currently owns the service state.
	ErrOperationInProgress = errors.New("operation already in progress")
)
