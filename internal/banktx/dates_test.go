package banktx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func windows(pairs ...string) []Window {
	var out []Window
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Window{From: day(pairs[i]), To: day(pairs[i+1])})
	}
	return out
}

func TestDatesList(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     []Window
	}{
		{"same day", "2025-03-01", "2025-03-01", windows("2025-03-01", "2025-03-01")},
		{"one day apart", "2025-03-01", "2025-03-02", windows("2025-03-01", "2025-03-02")},
		{"odd span", "2025-03-01", "2025-03-04", windows("2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04")},
		{"even span ends on to", "2025-03-01", "2025-03-05", windows("2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04", "2025-03-05", "2025-03-05")},
		{"across month", "2025-02-27", "2025-03-02", windows("2025-02-27", "2025-02-28", "2025-03-01", "2025-03-02")},
		{"reversed", "2025-03-05", "2025-03-01", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DatesList(day(tt.from), day(tt.to)))
		})
	}
}

func TestDatesList_NoGaps(t *testing.T) {
	from, to := day("2025-01-01"), day("2025-03-31")
	list := DatesList(from, to)

	assert.Equal(t, from, list[0].From)
	assert.Equal(t, to, list[len(list)-1].To)
	for i := 1; i < len(list); i++ {
		assert.Equal(t, list[i-1].To.AddDate(0, 0, 1), list[i].From)
		assert.False(t, list[i].To.Before(list[i].From))
	}
}

func TestManualWindows(t *testing.T) {
	today := day("2025-03-10").Add(15 * time.Hour)
	var zero time.Time

	tests := []struct {
		name     string
		from, to time.Time
		want     []Window
	}{
		{"no dates syncs today", zero, zero, windows("2025-03-10", "2025-03-11")},
		{"from today", day("2025-03-10"), zero, windows("2025-03-10", "2025-03-11")},
		{"future to kept", day("2025-03-10"), day("2025-03-13"), windows("2025-03-10", "2025-03-13")},
		{"missing to", day("2025-03-05"), zero, windows("2025-03-05", "2025-03-06")},
		{"missing from", zero, day("2025-03-06"), windows("2025-03-05", "2025-03-06")},
		{"range split", day("2025-03-05"), day("2025-03-09"), windows("2025-03-05", "2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09", "2025-03-09")},
		{"to clamped to today", day("2025-03-08"), day("2025-03-20"), windows("2025-03-08", "2025-03-09", "2025-03-10", "2025-03-10")},
		{"from clamped to history", day("2024-01-01"), day("2025-03-01"), windows("2025-02-28", "2025-03-01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ManualWindows(tt.from, tt.to, today, 10))
		})
	}
}

func TestAutoWindow(t *testing.T) {
	now := day("2025-03-10").Add(6 * time.Hour)

	tests := []struct {
		name     string
		lastSync time.Time
		want     Window
	}{
		{"never synced", time.Time{}, windows("2025-03-09", "2025-03-10")[0]},
		{"synced today", day("2025-03-10").Add(time.Hour), windows("2025-03-09", "2025-03-10")[0]},
		{"synced yesterday", day("2025-03-09").Add(20 * time.Hour), windows("2025-03-09", "2025-03-10")[0]},
		{"behind", day("2025-03-01").Add(20 * time.Hour), windows("2025-03-01", "2025-03-02")[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutoWindow(tt.lastSync, now))
		})
	}
}
