package domain

import (
	"regexp"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID      string
	Balance decimal.Decimal
}

var accountIDRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

func ValidateAccountID(id string) bool {
	return accountIDRe.MatchString(id)
}

// ValidateAmount accepts strictly positive amounts with at most 2 decimal places.
func ValidateAmount(a decimal.Decimal) bool {
	return a.IsPositive() && a.Equal(a.Truncate(2))
}
