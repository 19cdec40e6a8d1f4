package models

import "time"

// IVReading represents a single implied volatility reading for a symbol on a specific date
type IVReading struct {
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`
	IV        float64   `json:"iv"`        // Implied volatility as decimal (0.20 = 20%)
	Timestamp time.Time `json:"timestamp"` // When this reading was recorded
}

// TradingDay truncates t to its calendar date in UTC.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
