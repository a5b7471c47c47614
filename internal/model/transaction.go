package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction statuses derived from the receipt.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
)

// NormalizedTransaction is the unit of the ledger: one chain transaction
// touching the tracked address, with its value converted to base units.
type NormalizedTransaction struct {
	BlockNumber uint64
	TxHash      string
	From        string
	To          string
	Value       decimal.Decimal
	GasUsed     uint64
	GasPrice    uint64
	Timestamp   uint64
	Status      string
}

// Touches reports whether the transaction involves the given
// lowercase-normalized address on either side.
func (tx NormalizedTransaction) Touches(address string) bool {
	return tx.From == address || tx.To == address
}

// Incoming reports whether the transaction pays into the given address.
func (tx NormalizedTransaction) Incoming(address string) bool {
	return tx.To == address
}

// NormalizeAddress lowercases a hex address for case-insensitive compare.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Validate checks the record invariants before it is appended.
func (tx NormalizedTransaction) Validate() error {
	if tx.TxHash == "" {
		return fmt.Errorf("empty tx hash")
	}
	if tx.Value.IsNegative() {
		return fmt.Errorf("negative value %s in tx %s", tx.Value, tx.TxHash)
	}
	switch tx.Status {
	case StatusSuccess, StatusFailed, StatusUnknown:
	default:
		return fmt.Errorf("invalid status %q in tx %s", tx.Status, tx.TxHash)
	}
	return nil
}
