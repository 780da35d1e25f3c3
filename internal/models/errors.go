package models

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when another pipeline run holds the lock for a scope.
	ErrRunInProgress = errors.New("pipeline run already in progress")
	// ErrNotFound is returned when a keyed lookup has no row.
	ErrNotFound = errors.New("not found")
)

// DataSourceError means an upstream fetch failed or returned malformed data.
// The affected sport or game is skipped.
type DataSourceError struct {
	Sport string
	Op    string
	Err   error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s (%s): %v", e.Op, e.Sport, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// FeatureExtractionError means a single (player, statistic) pair could not be featurized.
type FeatureExtractionError struct {
	PlayerID  string
	Statistic string
	Reason    string
}

func (e *FeatureExtractionError) Error() string {
	return fmt.Sprintf("feature extraction %s/%s: %s", e.PlayerID, e.Statistic, e.Reason)
}

// InvalidFeaturesError means the prediction engine rejected its input.
type InvalidFeaturesError struct {
	Feature string
	Reason  string
}

func (e *InvalidFeaturesError) Error() string {
	return fmt.Sprintf("invalid feature %s: %s", e.Feature, e.Reason)
}

// StoreConflictError means a concurrent write was detected while upserting.
type StoreConflictError struct {
	Key string
	Err error
}

func (e *StoreConflictError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store conflict: %v", e.Err)
	}
	return fmt.Sprintf("store conflict on %s: %v", e.Key, e.Err)
}

func (e *StoreConflictError) Unwrap() error { return e.Err }

// ReconciliationJoinError describes an actual result excluded from a report.
type ReconciliationJoinError struct {
	Key    PredictionKey
	Reason string
}

func (e *ReconciliationJoinError) Error() string {
	return fmt.Sprintf("reconciliation %s: %s", e.Key, e.Reason)
}

// IsSkippable reports whether err should skip a single item rather than fail it.
func IsSkippable(err error) bool {
	var fe *FeatureExtractionError
	var ie *InvalidFeaturesError
	return errors.As(err, &fe) || errors.As(err, &ie)
}
