package shipping

import (
	"fmt"
	"time"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Status enumerates the shipment lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPreparing Status = "PREPARING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPreparing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving to next.
// Repeating the current status is allowed so the tracking number can be
// amended. DELIVERED and CANCELLED are terminal.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusDraft:
		return next == StatusPreparing || next == StatusShipped || next == StatusCancelled
	case StatusPreparing:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered
	}
	return false
}

// Shipment groups lines dispatched against one sales order. Stock is
// debited exactly once, on the transition into SHIPPED.
type Shipment struct {
	ID             int64
	OrderID        int64
	CustomerID     int64
	Status         Status
	TrackingNumber string
	Lines          []Line
	CreatedAt      time.Time
	ShippedAt      *time.Time
}

// Line is one product quantity on a shipment. WarehouseID, lot and
// serial pin the exact stock tuple to debit; a line without a product or
// warehouse is not debited.
type Line struct {
	ID           int64
	ShipmentID   int64
	ProductID    int64
	Quantity     int64
	WarehouseID  int64
	LotNumber    *string
	SerialNumber *string
}

var (
	// ErrInvalidStatus indicates an unknown shipment status value.
	ErrInvalidStatus = fmt.Errorf("shipping: invalid status: %w", shared.ErrValidation)
	// ErrStatusTransition rejects a lifecycle move the current status does not allow.
	ErrStatusTransition = fmt.Errorf("shipping: status transition not allowed: %w", shared.ErrConflict)
	// ErrNotCustomer rejects shipments for orders whose party is not a customer.
	ErrNotCustomer = fmt.Errorf("shipping: order party is not a customer: %w", shared.ErrValidation)
	// ErrNoLines rejects a shipment without lines.
	ErrNoLines = fmt.Errorf("shipping: shipment requires at least one line: %w", shared.ErrValidation)
)
