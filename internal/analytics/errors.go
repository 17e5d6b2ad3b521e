// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package analytics

import "errors"

// Training errors. Each one aborts the current call without producing a model.
var (
	// ErrEmptyInput indicates the row batch was empty.
	ErrEmptyInput = errors.New("empty input: no rows to process")

	// ErrNoValidFields indicates no field produced a processor.
	ErrNoValidFields = errors.New("no valid fields: every field was skipped")

	// ErrInconsistentDimension indicates an assembled feature row had the wrong length.
	ErrInconsistentDimension = errors.New("inconsistent feature dimension")

	// ErrInsufficientData indicates fewer points than the minimum cluster size.
	ErrInsufficientData = errors.New("insufficient data for clustering")

	// ErrEmptyBatch indicates the batch had no rows left after preprocessing.
	ErrEmptyBatch = errors.New("empty batch after preprocessing")

	// ErrUnknownModelKind indicates no trainer is registered for the requested kind.
	ErrUnknownModelKind = errors.New("unknown model kind")

	// ErrKindMismatch indicates the existing model was trained for a different kind.
	ErrKindMismatch = errors.New("existing model kind does not match request")

	// ErrInvalidTuning indicates the tuning parameters failed validation.
	ErrInvalidTuning = errors.New("invalid tuning")
)

// IsDataError reports whether err was caused by the shape or content of the
// input batch rather than by the engine itself.
func IsDataError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrNoValidFields) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrEmptyBatch)
}
