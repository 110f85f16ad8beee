package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	cardDateLayout        = "02/01/2006 15:04:05"
	marketplaceDateLayout = "2006-01-02"

	// ImportLabel marks every transaction normalized by this tool.
	ImportLabel = "automated-import"
)

func normalizeCardRow(row rowReader, file string, opts Options, rates map[string]decimal.Decimal) (*Transaction, error) {
	description := row.get(colDescription)
	for _, excluded := range opts.ExcludedDescriptions {
		if description == excluded {
			return nil, nil
		}
	}

	id := row.get(colTxnID)
	rawDate := fmt.Sprintf("%s %s", row.get(colDate), row.get(colTime))
	date, err := time.Parse(cardDateLayout, rawDate)
	if err != nil {
		return nil, &InvalidDateError{File: file, ID: id, Value: rawDate}
	}

	rawGross := row.get(colGross)
	gross, err := decimal.NewFromString(strings.ReplaceAll(rawGross, ",", ""))
	if err != nil {
		return nil, &InvalidAmountError{File: file, ID: id, Value: rawGross}
	}

	currency := row.get(colCurrency)
	rate, err := rateFor(currency, opts.BaseCurrency, file, id, rates)
	if err != nil {
		return nil, err
	}

	foreign := currency != "" && !strings.EqualFold(currency, opts.BaseCurrency)

	note := fmt.Sprintf("Automatched from card export on %s from the file %s\n"+
		"Original transaction ID: %s\n"+
		"Original date: %s\n"+
		"Original amount: %s %s",
		opts.Now.Format("2 Jan 2006 15:04:05"), file, id, rawDate, gross.String(), currency)
	if foreign {
		note += conversionNote(currency, opts.BaseCurrency, rate, opts.Now)
	}

	return &Transaction{
		Date:            date,
		Amount:          gross.Div(rate),
		Payee:           row.get(colName),
		Note:            note,
		Kind:            KindCard,
		OriginFile:      file,
		ForeignCurrency: foreign,
		SourceIDs:       []string{id},
		Labels:          []string{ImportLabel},
	}, nil
}

func normalizeMarketplaceRow(row rowReader, file string, opts Options, rates map[string]decimal.Decimal) (*Transaction, error) {
	id := row.get(colOrderID)
	rawDate := row.get(colOrderDate)
	date, err := time.Parse(marketplaceDateLayout, rawDate)
	if err != nil {
		return nil, &InvalidDateError{File: file, ID: id, Value: rawDate}
	}

	rawTotal := row.get(colTotal)
	total, err := decimal.NewFromString(strings.ReplaceAll(rawTotal, ",", ""))
	if err != nil {
		return nil, &InvalidAmountError{File: file, ID: id, Value: rawTotal}
	}

	currency := row.get(colCurrency)
	rate, err := rateFor(currency, opts.BaseCurrency, file, id, rates)
	if err != nil {
		return nil, err
	}

	foreign := currency != "" && !strings.EqualFold(currency, opts.BaseCurrency)

	// Orders billed across multiple charges list each charge amount
	// semicolon-separated in the Payments column.
	var splits []decimal.Decimal
	if raw := row.get(colPayments); raw != "" {
		for _, part := range strings.Split(raw, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			amount, err := decimal.NewFromString(part)
			if err != nil {
				return nil, &InvalidAmountError{File: file, ID: id, Value: part}
			}
			splits = append(splits, amount.Abs().Div(rate))
		}
	}

	note := fmt.Sprintf("Automatched from marketplace order history on %s from the file %s\n"+
		"Original order ID: %s\n"+
		"Original order date: %s\n"+
		"Original order total: %s %s",
		opts.Now.Format("2 Jan 2006 15:04:05"), file, id, rawDate, total.String(), currency)
	if len(splits) > 1 {
		note += fmt.Sprintf("\nOrder billed across %d charges", len(splits))
	}
	if foreign {
		note += conversionNote(currency, opts.BaseCurrency, rate, opts.Now)
	}

	return &Transaction{
		Date:            date,
		Amount:          total.Abs().Neg().Div(rate),
		Payee:           row.get(colWebsite),
		Note:            note,
		Kind:            KindMarketplace,
		OriginFile:      file,
		ForeignCurrency: foreign,
		SourceIDs:       []string{id},
		SplitAmounts:    splits,
		Labels:          []string{ImportLabel},
	}, nil
}
