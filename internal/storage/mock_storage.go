package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// MockStorage implements Interface in memory for testing
type MockStorage struct {
	mu         sync.Mutex
	readings   map[string][]models.IVReading
	storeError error
	storeCalls int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{readings: make(map[string][]models.IVReading)}
}

// SetStoreError makes every later StoreIVReading call fail with err.
func (m *MockStorage) SetStoreError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeError = err
}

// StoreCalls returns how many times StoreIVReading was called.
func (m *MockStorage) StoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeCalls
}

// StoreIVReading records the reading unless a store error is set.
func (m *MockStorage) StoreIVReading(reading *models.IVReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	if m.storeError != nil {
		return m.storeError
	}
	if reading == nil {
		return fmt.Errorf("reading is nil")
	}
	r := *reading
	r.Symbol = symbolKey(r.Symbol)
	r.Date = models.TradingDay(r.Date)
	m.readings[r.Symbol] = upsert(m.readings[r.Symbol], r)
	return nil
}

// GetIVReadings returns readings within the date range.
func (m *MockStorage) GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return between(m.readings[symbolKey(symbol)], startDate, endDate), nil
}

// GetLatestIVReading returns the newest reading.
func (m *MockStorage) GetLatestIVReading(symbol string) (*models.IVReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return latest(m.readings[symbolKey(symbol)], symbol)
}
