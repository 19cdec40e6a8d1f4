package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// DefaultRetention keeps a little over a year of readings per symbol.
const DefaultRetention = 400 * 24 * time.Hour

// JSONStorage keeps IV readings in a single JSON file, rewritten atomically on
// every change.
type JSONStorage struct {
	mu        sync.RWMutex
	filepath  string
	data      *Data
	retention time.Duration
	now       func() time.Time
}

// Data is the on-disk document.
type Data struct {
	Readings    map[string][]models.IVReading `json:"readings"`
	LastUpdated time.Time                     `json:"last_updated"`
}

// NewJSONStorage opens the file at path, loading existing readings if present.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath:  path,
		data:      &Data{Readings: make(map[string][]models.IVReading)},
		retention: DefaultRetention,
		now:       time.Now,
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// WithClock replaces the clock used for pruning and LastUpdated.
func (s *JSONStorage) WithClock(now func() time.Time) *JSONStorage {
	if now != nil {
		s.now = now
	}
	return s
}

// Load replaces the in-memory readings with the file contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	data := &Data{}
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	if data.Readings == nil {
		data.Readings = make(map[string][]models.IVReading)
	}
	s.data = data
	return nil
}

// Save writes the readings to disk.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = s.now().UTC()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

func symbolKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// StoreIVReading records reading and persists the file.
func (s *JSONStorage) StoreIVReading(reading *models.IVReading) error {
	if reading == nil {
		return fmt.Errorf("reading is nil")
	}
	if reading.IV <= 0 {
		return fmt.Errorf("iv must be > 0, got %v", reading.IV)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := symbolKey(reading.Symbol)
	r := *reading
	r.Symbol = key
	r.Date = models.TradingDay(r.Date)
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}
	s.data.Readings[key] = prune(upsert(s.data.Readings[key], r), s.now().Add(-s.retention))
	return s.saveLocked()
}

// GetIVReadings returns the symbol's readings within the date range.
func (s *JSONStorage) GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return between(s.data.Readings[symbolKey(symbol)], startDate, endDate), nil
}

// GetLatestIVReading returns the most recent reading for symbol.
func (s *JSONStorage) GetLatestIVReading(symbol string) (*models.IVReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latest(s.data.Readings[symbolKey(symbol)], symbol)
}

// upsert inserts r keeping readings sorted by date, replacing a same-day reading.
func upsert(readings []models.IVReading, r models.IVReading) []models.IVReading {
	i := sort.Search(len(readings), func(i int) bool { return !readings[i].Date.Before(r.Date) })
	if i < len(readings) && readings[i].Date.Equal(r.Date) {
		readings[i] = r
		return readings
	}
	readings = append(readings, models.IVReading{})
	copy(readings[i+1:], readings[i:])
	readings[i] = r
	return readings
}

func prune(readings []models.IVReading, cutoff time.Time) []models.IVReading {
	cutoff = models.TradingDay(cutoff)
	i := sort.Search(len(readings), func(i int) bool { return !readings[i].Date.Before(cutoff) })
	return append([]models.IVReading(nil), readings[i:]...)
}

func between(readings []models.IVReading, start, end time.Time) []models.IVReading {
	start, end = models.TradingDay(start), models.TradingDay(end)
	out := []models.IVReading{}
	for _, r := range readings {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func latest(readings []models.IVReading, symbol string) (*models.IVReading, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w for symbol %s", ErrNoIVReadings, symbolKey(symbol))
	}
	r := readings[len(readings)-1]
	return &r, nil
}
