package order

import "errors"

var (
	// ErrSlotContention means the capacity window lock could not be taken in
	// time or the transaction lost a conflict. Callers may retry with backoff.
	ErrSlotContention = errors.New("slot contention, please retry")

	ErrNoTransaction = errors.New("window lock requires a transaction")
	ErrOrderNotFound = errors.New("order not found")
)
