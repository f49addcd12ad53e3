package stock

import (
	"fmt"
	"time"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
	// MovementAdjustment sets a record to an absolute quantity.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementTransfer is used for the two legs of a warehouse transfer.
	MovementTransfer MovementType = "TRANSFER"
)

// ItemRef identifies exactly one material or product, never both.
type ItemRef struct {
	MaterialID int64
	ProductID  int64
}

// Validate checks exactly one side of the reference is set.
func (ref ItemRef) Validate() error {
	if (ref.MaterialID == 0) == (ref.ProductID == 0) {
		return ErrInvalidItemRef
	}
	return nil
}

// Record holds the quantity for one (item, warehouse, lot, serial) tuple.
// Lot and serial use NULL as the canonical "absent" sentinel; empty strings
// are normalized before lookup.
type Record struct {
	ID           int64
	MaterialID   int64
	ProductID    int64
	WarehouseID  int64
	LotNumber    *string
	SerialNumber *string
	Quantity     int64
	UpdatedAt    time.Time
}

// Item returns the record's item reference.
func (r Record) Item() ItemRef {
	return ItemRef{MaterialID: r.MaterialID, ProductID: r.ProductID}
}

// Movement is an immutable ledger row. Quantity is a magnitude for IN and
// OUT (the type carries direction) and a signed delta for ADJUSTMENT and
// TRANSFER legs.
type Movement struct {
	ID           int64
	MaterialID   int64
	ProductID    int64
	WarehouseID  int64
	Type         MovementType
	Quantity     int64
	Reason       string
	LotNumber    *string
	SerialNumber *string
	CreatedAt    time.Time
}

// Delta reports the signed quantity change this movement applied to its
// tuple. Summing deltas over a tuple's full history reproduces the record
// quantity.
func (m Movement) Delta() int64 {
	switch m.Type {
	case MovementIn:
		return m.Quantity
	case MovementOut:
		return -m.Quantity
	default:
		return m.Quantity
	}
}

// RecordKey is the full tuple key of one stock record.
type RecordKey struct {
	Item         ItemRef
	WarehouseID  int64
	LotNumber    *string
	SerialNumber *string
}

// AdjustInput describes a single adjustment call. Quantity is a
// non-negative magnitude for IN/OUT and the target absolute value for
// ADJUSTMENT.
type AdjustInput struct {
	Item         ItemRef
	WarehouseID  int64
	Type         MovementType
	Quantity     int64
	Reason       string
	LotNumber    string
	SerialNumber string
	ActorID      int64
}

// TransferInput moves quantity between two warehouses.
type TransferInput struct {
	Item         ItemRef
	SrcWarehouse int64
	DstWarehouse int64
	Quantity     int64
	Reason       string
	LotNumber    string
	SerialNumber string
	ActorID      int64
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	MaterialID   int64
	ProductID    int64
	WarehouseID  int64
	OnlyPositive bool
}

// MovementFilter narrows movement history listings.
type MovementFilter struct {
	MaterialID  int64
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// NormalizeRef maps the empty string to the canonical NULL sentinel for
// lot and serial numbers.
func NormalizeRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Sentinels wrap the shared taxonomy so the HTTP edge can map them to
// status codes without importing this package.
var (
	// ErrRecordNotFound indicates a missing stock record for a tuple key.
	ErrRecordNotFound = fmt.Errorf("stock: record %w", shared.ErrNotFound)
	// ErrInsufficientStock is returned when a debit exceeds the available quantity.
	ErrInsufficientStock = fmt.Errorf("stock: insufficient stock: %w", shared.ErrConflict)
	// ErrNegativeStock is returned when negative quantities are disallowed by config.
	ErrNegativeStock = fmt.Errorf("stock: negative stock not allowed: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a negative magnitude or target.
	ErrInvalidQuantity = fmt.Errorf("stock: quantity must be non-negative: %w", shared.ErrValidation)
	// ErrInvalidItemRef indicates an item reference naming zero or both sides.
	ErrInvalidItemRef = fmt.Errorf("stock: exactly one of material or product required: %w", shared.ErrValidation)
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = fmt.Errorf("stock: invalid movement type: %w", shared.ErrValidation)
)
