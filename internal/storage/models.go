package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetSnapshot is one priced holding captured after a portfolio refresh.
type AssetSnapshot struct {
	ID              int64
	CapturedAt      time.Time
	Wallet          string
	Symbol          string
	ContractAddress string
	Network         string
	Balance         decimal.Decimal
	Price           decimal.Decimal
	Value           decimal.Decimal
}
