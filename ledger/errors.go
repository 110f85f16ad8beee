package ledger

import "fmt"

// FetchError is returned when the remote ledger cannot supply transactions,
// accounts or the current user. It is fatal to the fetch stage.
type FetchError struct {
	Op     string // "user", "accounts", "transactions"
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ledger fetch (%s) failed with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("ledger fetch (%s) failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpdateError is returned when a remote update fails for a reason other than
// authentication. The item is treated as not-yet-applied and the confirmation
// loop continues.
type UpdateError struct {
	TransactionID int64
	Status        int
	Err           error
}

func (e *UpdateError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("update of ledger transaction %d failed with status %d", e.TransactionID, e.Status)
	}
	return fmt.Sprintf("update of ledger transaction %d failed: %v", e.TransactionID, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when the remote service rejects the API
// key. It aborts the entire run immediately.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ledger authentication failed with status %d; check the API key", e.Status)
}
