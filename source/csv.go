package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Schema identifies a recognized CSV header layout.
type Schema int

const (
	SchemaUnknown Schema = iota
	SchemaCard
	SchemaMarketplace
)

// Column names for the card-processor export.
const (
	colDate        = "Date"
	colTime        = "Time"
	colDescription = "Description"
	colCurrency    = "Currency"
	colGross       = "Gross"
	colName        = "Name"
	colTxnID       = "Transaction ID"
)

// Column names for the marketplace order history.
const (
	colOrderDate = "Order Date"
	colOrderID   = "Order ID"
	colWebsite   = "Website"
	colTotal     = "Total Charged"
	colPayments  = "Payments"
)

// Options configures CSV loading and normalization. The zero value is not
// usable; construct one explicitly at startup and treat it as immutable.
type Options struct {
	// Dir is the directory scanned for *.csv files.
	Dir string

	// BaseCurrency is the ledger's currency; foreign amounts are converted
	// into it using the supplied rate table.
	BaseCurrency string

	// ExcludedDescriptions drops card-processor rows that are internal
	// transfers or conversions rather than real spending.
	ExcludedDescriptions []string

	// Now is the run timestamp recorded in audit notes. Defaults to the wall
	// clock when zero.
	Now time.Time
}

// DefaultExcludedDescriptions covers the processor's internal bookkeeping
// rows that never correspond to a ledger charge.
func DefaultExcludedDescriptions() []string {
	return []string{
		"Bank Deposit to Balance",
		"General Currency Conversion",
	}
}

// DetectSchema inspects a header row and returns the schema it belongs to.
func DetectSchema(header []string) Schema {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[strings.TrimSpace(h)] = true
	}
	switch {
	case cols[colGross] && cols[colTxnID]:
		return SchemaCard
	case cols[colOrderID] && cols[colTotal]:
		return SchemaMarketplace
	default:
		return SchemaUnknown
	}
}

// LoadDir reads every CSV file in opts.Dir, detects each file's schema from
// its header row and normalizes the rows into transactions. The rate table
// maps currency codes to units per base currency; a currency observed in a
// row but absent from the table is a fatal input error.
func LoadDir(opts Options, rates map[string]decimal.Decimal) ([]Transaction, error) {
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, &ParseError{File: opts.Dir, Msg: "cannot read input directory", Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, &NoInputError{Dir: opts.Dir}
	}
	sort.Strings(files)

	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var txns []Transaction
	for _, name := range files {
		f, err := os.Open(filepath.Join(opts.Dir, name))
		if err != nil {
			return nil, &ParseError{File: name, Msg: "cannot open file", Err: err}
		}
		fileTxns, err := loadFile(f, name, opts, rates)
		f.Close()
		if err != nil {
			return nil, err
		}
		txns = append(txns, fileTxns...)
	}

	return txns, nil
}

func loadFile(r io.Reader, name string, opts Options, rates map[string]decimal.Decimal) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &ParseError{File: name, Line: 1, Msg: "cannot read header row", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	schema := DetectSchema(header)
	if schema == SchemaUnknown {
		return nil, &UnknownSchemaError{File: name, Header: header}
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}

	var txns []Transaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &ParseError{File: name, Line: line, Msg: "malformed row", Err: err}
		}

		row := rowReader{record: record, idx: idx}

		var txn *Transaction
		switch schema {
		case SchemaCard:
			txn, err = normalizeCardRow(row, name, opts, rates)
		case SchemaMarketplace:
			txn, err = normalizeMarketplaceRow(row, name, opts, rates)
		}
		if err != nil {
			return nil, err
		}
		if txn != nil {
			txns = append(txns, *txn)
		}
	}

	return txns, nil
}

// rowReader gives named access to a CSV record through the header index.
type rowReader struct {
	record []string
	idx    map[string]int
}

func (r rowReader) get(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// rateFor resolves the conversion rate for a currency. The base currency
// always converts at 1.
func rateFor(currency, base, file, id string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	if currency == "" || strings.EqualFold(currency, base) {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := rates[currency]
	if !ok || rate.IsZero() {
		return decimal.Zero, &MissingRateError{Currency: currency, File: file, ID: id}
	}
	return rate, nil
}

func conversionNote(currency, base string, rate decimal.Decimal, now time.Time) string {
	return fmt.Sprintf("\nConverted from %s to %s at %s on %s",
		currency, base, rate.String(), now.Format("2 Jan 2006 15:04:05"))
}
