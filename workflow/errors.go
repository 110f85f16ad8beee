package workflow

import "fmt"

// MatchingError is returned when the matching stage is missing required
// context. It is fatal to the stage.
type MatchingError struct {
	Reason string
}

func (e *MatchingError) Error() string {
	return fmt.Sprintf("cannot match transactions: %s", e.Reason)
}

// DuplicateIdentifierError is a recoverable validation error: the operator
// entered the same identifier twice within one multi-order batch. The
// workflow stays in identifier entry so the batch can be re-entered.
type DuplicateIdentifierError struct {
	Identifier string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q appears more than once in the batch", e.Identifier)
}

// EmptyIdentifierError is a recoverable validation error: the operator
// submitted no usable identifier.
type EmptyIdentifierError struct{}

func (e *EmptyIdentifierError) Error() string {
	return "no identifier entered"
}

// UnknownIdentifierError is a recoverable validation error: the operator
// bound a ledger charge to an identifier that matches no loaded source
// transaction.
type UnknownIdentifierError struct {
	Identifier string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q matches no transaction in the loaded exports", e.Identifier)
}
