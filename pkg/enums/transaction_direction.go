package enums

import "fmt"

// TransactionDirection records whether a wallet transaction adds or removes funds.
type TransactionDirection string

const (
	TransactionDirectionIn  TransactionDirection = "in"
	TransactionDirectionOut TransactionDirection = "out"
)

var validTransactionDirections = []TransactionDirection{
	TransactionDirectionIn,
	TransactionDirectionOut,
}

// IsValid reports whether the value is a known TransactionDirection.
func (d TransactionDirection) IsValid() bool {
	for _, candidate := range validTransactionDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseTransactionDirection converts raw input into a TransactionDirection.
func ParseTransactionDirection(value string) (TransactionDirection, error) {
	for _, candidate := range validTransactionDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction direction %q", value)
}

// Signed returns amount with the direction's sign applied.
func (d TransactionDirection) Signed(amount int) int {
	if d == TransactionDirectionOut {
		return -amount
	}
	return amount
}
