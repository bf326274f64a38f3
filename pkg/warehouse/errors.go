package warehouse

import "errors"

var (
	// ErrInvalidSuffix indicates a staging suffix other than "_stage".
	ErrInvalidSuffix = errors.New("invalid suffix")

	// ErrLoadPolicyUnresolved indicates an upsert without a primary key or
	// timestamp key and without a truncate override.
	ErrLoadPolicyUnresolved = errors.New("load policy unresolved")

	// ErrWarehouse indicates a failed statement on the warehouse.
	ErrWarehouse = errors.New("warehouse failure")
)
