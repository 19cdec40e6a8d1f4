// Package storage persists the daily implied-volatility readings the scout
// observes, so IV rank can be computed from real IV rather than a proxy.
package storage

import (
	"errors"
	"time"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// ErrNoIVReadings is returned when no IV readings are found for a symbol
var ErrNoIVReadings = errors.New("no IV readings found")

// Interface defines the contract for IV reading persistence.
//
// Implementations must be safe for concurrent use.
type Interface interface {
	// StoreIVReading records a reading. A reading for a symbol and date that
	// already exists is replaced.
	StoreIVReading(reading *models.IVReading) error
	// GetIVReadings returns readings dated within [startDate, endDate], oldest first.
	GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error)
	// GetLatestIVReading returns ErrNoIVReadings when the symbol has none.
	GetLatestIVReading(symbol string) (*models.IVReading, error)
}

// NewStorage creates a new storage implementation (currently JSON-based)
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure both implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
