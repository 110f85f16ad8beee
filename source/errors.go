package source

import "fmt"

// Error types for CSV input errors. All of them are fatal to the CSV stage;
// the workflow preserves accumulated state for diagnosis.

// NoInputError is returned when the input directory contains no CSV files.
type NoInputError struct {
	Dir string
}

func (e *NoInputError) Error() string {
	return fmt.Sprintf("no CSV files found in %s", e.Dir)
}

// ParseError is returned when a CSV file cannot be read or a row cannot be
// interpreted under its detected schema.
type ParseError struct {
	File string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	location := e.File
	if e.Line > 0 {
		location = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", location, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", location, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// UnknownSchemaError is returned when a file's header row matches neither
// recognized schema.
type UnknownSchemaError struct {
	File   string
	Header []string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("%s: header row matches no recognized schema (%d columns)", e.File, len(e.Header))
}

// MissingRateError is returned when a transaction's currency has no rate in
// the fetched rate table. A missing rate is fatal for the run.
type MissingRateError struct {
	Currency string
	File     string
	ID       string
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("%s: no rate for currency %s (transaction %s)", e.File, e.Currency, e.ID)
}

// InvalidDateError is returned when a row's date cannot be parsed.
type InvalidDateError struct {
	File  string
	ID    string
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("%s: invalid date %q in transaction %s", e.File, e.Value, e.ID)
}

// InvalidAmountError is returned when a row's amount cannot be parsed.
type InvalidAmountError struct {
	File  string
	ID    string
	Value string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s: invalid amount %q in transaction %s", e.File, e.Value, e.ID)
}
