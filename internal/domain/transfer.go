package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer is the committed result of moving Amount between two accounts.
type Transfer struct {
	ID        uuid.UUID
	From      Account
	To        Account
	Amount    decimal.Decimal
	CreatedAt time.Time
}
