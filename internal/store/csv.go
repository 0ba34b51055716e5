package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var csvHeader = []string{"t", "o", "h", "l", "c", "v", "vw", "n"}

// CSVCodec persists archives as CSV with the shared column header.
type CSVCodec struct{}

func (CSVCodec) Extension() string { return "csv" }

func (CSVCodec) Write(path string, recs []barRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write([]string{
			strconv.FormatInt(r.Timestamp, 10),
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			strconv.FormatInt(r.Volume, 10),
			floatStr(r.VWAP),
			strconv.FormatInt(r.Transactions, 10),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (CSVCodec) Read(path string) ([]barRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	recs := make([]barRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("row %d: want %d columns, got %d", i+2, len(csvHeader), len(row))
		}
		var r barRecord
		if r.Timestamp, err = strconv.ParseInt(row[0], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.Open, err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.High, err = strconv.ParseFloat(row[2], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.Low, err = strconv.ParseFloat(row[3], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.Close, err = strconv.ParseFloat(row[4], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.Volume, err = strconv.ParseInt(row[5], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.VWAP, err = strconv.ParseFloat(row[6], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.Transactions, err = strconv.ParseInt(row[7], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
