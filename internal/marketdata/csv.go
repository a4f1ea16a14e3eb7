package marketdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skewcast/skewcast/internal/domain"
)

// Default column names for imported CSV files
const (
	DefaultDateColumn  = "date"
	DefaultCloseColumn = "close"
)

// Date layouts accepted in import files, tried in order
var csvDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
}

// LoadCSV reads a daily close series from a CSV file with a header row.
// Column lookup is case-insensitive. Rows with unparseable dates or
// non-positive closes are skipped and counted. The result is sorted by
// date; duplicate dates keep the last occurrence.
func LoadCSV(path, dateCol, closeCol string) ([]domain.DailyClose, int, error) {
	if dateCol == "" {
		dateCol = DefaultDateColumn
	}
	if closeCol == "" {
		closeCol = DefaultCloseColumn
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open csv %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, 0, fmt.Errorf("csv %s has no data rows", path)
	}

	dateIdx, closeIdx := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(dateCol):
			dateIdx = i
		case strings.ToLower(closeCol):
			closeIdx = i
		}
	}
	if dateIdx < 0 {
		return nil, 0, fmt.Errorf("csv %s is missing column %q", path, dateCol)
	}
	if closeIdx < 0 {
		return nil, 0, fmt.Errorf("csv %s is missing column %q", path, closeCol)
	}

	byDate := make(map[string]float64)
	skipped := 0
	for _, record := range records[1:] {
		if dateIdx >= len(record) || closeIdx >= len(record) {
			skipped++
			continue
		}

		date, ok := parseCSVDate(record[dateIdx])
		if !ok {
			skipped++
			continue
		}

		closeVal, err := strconv.ParseFloat(strings.TrimSpace(record[closeIdx]), 64)
		if err != nil || closeVal <= 0 {
			skipped++
			continue
		}

		byDate[date] = closeVal
	}

	if len(byDate) == 0 {
		return nil, skipped, fmt.Errorf("csv %s contained no usable rows", path)
	}

	closes := make([]domain.DailyClose, 0, len(byDate))
	for date, closeVal := range byDate {
		closes = append(closes, domain.DailyClose{Date: date, Close: closeVal})
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].Date < closes[j].Date })

	return closes, skipped, nil
}

// WriteCSV writes a daily close series with a standard header
func WriteCSV(path string, closes []domain.DailyClose) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	if err := writer.Write([]string{DefaultDateColumn, DefaultCloseColumn}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, c := range closes {
		row := []string{c.Date, strconv.FormatFloat(c.Close, 'f', -1, 64)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv %s: %w", path, err)
	}
	return nil
}

func parseCSVDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(domain.DayFormat), true
		}
	}
	return "", false
}
