package store

import (
	"strings"
	"time"

	"barcache/internal/model"
)

// barRecord is the persisted row shape shared by every codec. Column names
// follow the aggregate short form (t,o,h,l,c,v,vw,n); t is the bar's calendar
// day as UTC-midnight unix milliseconds.
type barRecord struct {
	Timestamp    int64   `json:"t" parquet:"t"`
	Open         float64 `json:"o" parquet:"o"`
	High         float64 `json:"h" parquet:"h"`
	Low          float64 `json:"l" parquet:"l"`
	Close        float64 `json:"c" parquet:"c"`
	Volume       int64   `json:"v" parquet:"v"`
	VWAP         float64 `json:"vw,omitempty" parquet:"vw,optional"`
	Transactions int64   `json:"n,omitempty" parquet:"n,optional"`
}

func recordOf(b model.Bar) barRecord {
	return barRecord{
		Timestamp:    model.DateOf(b.Date).UnixMilli(),
		Open:         b.Open,
		High:         b.High,
		Low:          b.Low,
		Close:        b.Close,
		Volume:       b.Volume,
		VWAP:         b.VWAP,
		Transactions: b.Transactions,
	}
}

func (r barRecord) bar() model.Bar {
	return model.Bar{
		Date:         model.DateOf(time.UnixMilli(r.Timestamp)),
		Open:         r.Open,
		High:         r.High,
		Low:          r.Low,
		Close:        r.Close,
		Volume:       r.Volume,
		VWAP:         r.VWAP,
		Transactions: r.Transactions,
	}
}

// Codec reads and writes one archive file of bar records. Write must produce
// a file that Read can fully round-trip; atomicity is the store's concern,
// codecs always receive a final path to (over)write.
type Codec interface {
	Write(path string, recs []barRecord) error
	Read(path string) ([]barRecord, error)
	Extension() string
}

// NewCodec creates a codec by format name (parquet, json, csv).
// Returns nil if the format is not supported.
func NewCodec(format string) Codec {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "parquet":
		return ParquetCodec{}
	case "json":
		return JSONCodec{}
	case "csv":
		return CSVCodec{}
	default:
		return nil
	}
}
