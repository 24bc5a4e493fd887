package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct    = errors.New("product id must be greater than zero")
	ErrInvalidName       = errors.New("product name is required")
	ErrInvalidPrice      = errors.New("product price must not be negative")
	ErrInvalidStock      = errors.New("product stock must not be negative")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a sellable catalogue entry with its on-hand stock.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    int
	Category string
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementSale         MovementKind = "sale"
	MovementCompensation MovementKind = "compensation"
)

// Movement records one stock change. Quantity is always positive; the kind gives the sign.
type Movement struct {
	ID            int64
	ProductID     int64
	Kind          MovementKind
	Quantity      int
	PreviousStock int
	NewStock      int
	UserID        string
	OrderID       int64
	SettlementID  string
	CreatedAt     time.Time
}

// Demand is the quantity of one product a settlement needs.
type Demand struct {
	ProductID int64
	Quantity  int
}

// MergeDemand sums quantities per product and orders the result by product id, which is
// also the order rows are locked in.
func MergeDemand(items []Demand) ([]Demand, error) {
	totals := make(map[int64]int, len(items))
	for _, d := range items {
		if d.ProductID <= 0 {
			return nil, ErrInvalidProduct
		}
		if d.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, d.ProductID)
		}
		totals[d.ProductID] += d.Quantity
	}
	merged := make([]Demand, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Demand{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// InsufficientStockError names the first product that cannot cover its demand.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): available %d, requested %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CheckDemand verifies every demand against the given stock levels before anything is
// decremented, so a failing settlement never touches stock.
func CheckDemand(products map[int64]Product, demand []Demand) error {
	for _, d := range demand {
		p, ok := products[d.ProductID]
		if !ok {
			continue
		}
		if p.Stock < d.Quantity {
			return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: d.Quantity}
		}
	}
	return nil
}
