package polygon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"barcache/internal/model"
)

// barRaw is one aggregate result. FlexibleInt64 absorbs the API's habit of
// returning volume and trade counts as floats or scientific notation.
type barRaw struct {
	Timestamp    int64         `json:"t"` // unix milliseconds
	Open         float64       `json:"o"`
	High         float64       `json:"h"`
	Low          float64       `json:"l"`
	Close        float64       `json:"c"`
	Volume       FlexibleInt64 `json:"v"`
	VWAP         float64       `json:"vw,omitempty"`
	Transactions FlexibleInt64 `json:"n,omitempty"`
}

func (br barRaw) toBar() model.Bar {
	return model.Bar{
		Date:         model.DateOf(time.UnixMilli(br.Timestamp)),
		Open:         br.Open,
		High:         br.High,
		Low:          br.Low,
		Close:        br.Close,
		Volume:       br.Volume.Int64(),
		VWAP:         br.VWAP,
		Transactions: br.Transactions.Int64(),
	}
}

// aggregatesResponse is the /v2/aggs envelope.
type aggregatesResponse struct {
	Ticker       string   `json:"ticker"`
	QueryCount   int      `json:"queryCount"`
	ResultsCount int      `json:"resultsCount"`
	Adjusted     bool     `json:"adjusted"`
	Results      []barRaw `json:"results"`
	Status       string   `json:"status"`
	RequestID    string   `json:"request_id"`
	Count        int      `json:"count"`
	NextURL      string   `json:"next_url,omitempty"`
}

// FlexibleInt64 parses int, float (incl. scientific notation) or a numeric
// string to int64.
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(int64(val))
		return nil
	}

	var floatVal float64
	if err := json.Unmarshal(data, &floatVal); err == nil {
		*f = FlexibleInt64(int64(floatVal))
		return nil
	}

	var intVal int64
	if err := json.Unmarshal(data, &intVal); err == nil {
		*f = FlexibleInt64(intVal)
		return nil
	}

	return fmt.Errorf("cannot parse as int64: %s", string(data))
}

// Int64 returns the plain int64 value.
func (f FlexibleInt64) Int64() int64 { return int64(f) }
