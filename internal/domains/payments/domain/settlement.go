package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	inventorydomain "github.com/Apurer/tableside/internal/domains/inventory/domain"
)

var ErrInvalidTable = errors.New("settlement table id is required")

// SettleInput asks for the active order of a table to be paid.
type SettleInput struct {
	TableID string
	UserID  string
}

func (in SettleInput) Validate() error {
	if strings.TrimSpace(in.TableID) == "" {
		return ErrInvalidTable
	}
	return nil
}

// Plan is the priced snapshot a settlement works from. Every step receives the same plan,
// so a retried step acts on exactly what the first attempt saw.
type Plan struct {
	SettlementID string
	OrderID      int64
	TableID      string
	UserID       string
	Fingerprint  string
	Total        decimal.Decimal
	Demand       []inventorydomain.Demand
}

// Receipt summarises a completed settlement.
type Receipt struct {
	SettlementID string
	OrderID      int64
	TableID      string
	Total        decimal.Decimal
	PaidAt       time.Time
	Movements    []inventorydomain.Movement
}
