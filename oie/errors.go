package oie

import "errors"

// ErrUnknownKind is returned when a fetch targets a kind with no
// registered connector.
var ErrUnknownKind = errors.New("oie: unknown dataset kind")

// ErrEmptyDatasetID is returned when a tool call omits the dataset_id.
var ErrEmptyDatasetID = errors.New("oie: dataset_id is required")

// ErrFetchFailed is returned when the upstream connector call fails.
var ErrFetchFailed = errors.New("oie: upstream fetch failed")
