package dataset

import "errors"

// ErrDatasetNotFound is returned when a dataset ID is unknown or its
// snapshot has expired; callers cannot distinguish the two cases.
var ErrDatasetNotFound = errors.New("dataset: dataset not found or expired")

// ErrItemNotFound is returned when an item ID resolves to nothing inside an
// existing dataset.
var ErrItemNotFound = errors.New("dataset: item not found")
