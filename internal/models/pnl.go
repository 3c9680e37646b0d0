package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// PnlPoint is the canonical form of one sample in an account's cumulative
// PnL series. Feed payloads report points as bare numbers, [ts, value]
// tuples, or keyed records; all three normalize into this type at the
// ingestion boundary so the scoring core only ever sees one shape.
type PnlPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ParsePnlPoint decodes one raw series element. Accepted shapes:
//
//	12345.6
//	[1693526400000, 12345.6]
//	{"time": 1693526400000, "pnl": "12345.6"}
//	{"timestamp": 1693526400000, "value": 12345.6}
//
// Millisecond epoch timestamps. Non-finite values are rejected here so the
// core can assume well-formed input.
func ParsePnlPoint(raw json.RawMessage, fallbackTs time.Time) (PnlPoint, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return finitePoint(fallbackTs, num)
	}

	var tuple []json.Number
	if err := json.Unmarshal(raw, &tuple); err == nil {
		if len(tuple) != 2 {
			return PnlPoint{}, fmt.Errorf("pnl tuple has %d elements, want 2", len(tuple))
		}
		ts, err := tuple[0].Int64()
		if err != nil {
			return PnlPoint{}, fmt.Errorf("pnl tuple timestamp: %w", err)
		}
		v, err := tuple[1].Float64()
		if err != nil {
			return PnlPoint{}, fmt.Errorf("pnl tuple value: %w", err)
		}
		return finitePoint(time.UnixMilli(ts), v)
	}

	var rec struct {
		Time      *int64       `json:"time"`
		Timestamp *int64       `json:"timestamp"`
		Pnl       *json.Number `json:"pnl"`
		Value     *json.Number `json:"value"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PnlPoint{}, fmt.Errorf("unrecognized pnl point shape: %w", err)
	}

	ts := fallbackTs
	if rec.Time != nil {
		ts = time.UnixMilli(*rec.Time)
	} else if rec.Timestamp != nil {
		ts = time.UnixMilli(*rec.Timestamp)
	}

	var valNum *json.Number
	switch {
	case rec.Pnl != nil:
		valNum = rec.Pnl
	case rec.Value != nil:
		valNum = rec.Value
	default:
		return PnlPoint{}, fmt.Errorf("pnl record missing value field")
	}
	v, err := valNum.Float64()
	if err != nil {
		return PnlPoint{}, fmt.Errorf("pnl record value: %w", err)
	}
	return finitePoint(ts, v)
}

// ParsePnlSeries normalizes a raw JSON array of mixed-shape points into the
// canonical series, preserving order. Points without their own timestamp
// inherit fallbackStart plus their index as a stable ordering hint.
func ParsePnlSeries(raw json.RawMessage, fallbackStart time.Time) ([]PnlPoint, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("pnl series is not an array: %w", err)
	}
	series := make([]PnlPoint, 0, len(elems))
	for i, e := range elems {
		p, err := ParsePnlPoint(e, fallbackStart.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("pnl series point %d: %w", i, err)
		}
		series = append(series, p)
	}
	return series, nil
}

func finitePoint(ts time.Time, v float64) (PnlPoint, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return PnlPoint{}, fmt.Errorf("non-finite pnl value %v", v)
	}
	return PnlPoint{Timestamp: ts, Value: v}, nil
}
