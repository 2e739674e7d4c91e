package region

import "errors"

var (
	// ErrInvalidCode is returned when a division code is malformed.
	ErrInvalidCode = errors.New("invalid region code")
	// ErrNotFound is returned when a code is not present in the dataset.
	ErrNotFound = errors.New("region not found")
	// ErrDuplicateCode is returned when a dataset lists the same code twice.
	ErrDuplicateCode = errors.New("duplicate region code")
	// ErrOrphan is returned when a region's parent is missing from the dataset.
	ErrOrphan = errors.New("region parent not found in dataset")
	// ErrEmptyDataset is returned when a dataset holds no regions.
	ErrEmptyDataset = errors.New("dataset contains no regions")
	// ErrTrailingData is returned when anything but whitespace follows the
	// dataset array.
	ErrTrailingData = errors.New("unexpected data after dataset array")
)
