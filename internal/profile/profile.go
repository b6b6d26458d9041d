package profile

import (
	"context"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Classification is the coarse semantic kind of a column.
type Classification int

const (
	Unknown Classification = iota
	Qualitative
	Quantitative
)

func (c Classification) String() string {
	switch c {
	case Qualitative:
		return "Qualitative"
	case Quantitative:
		return "Quantitative"
	default:
		return "Unknown"
	}
}

// MarshalText lets classifications render by name in JSON and YAML.
func (c Classification) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// DataType is the finer representation inferred from a column's values.
// The declaration order doubles as the tie-break priority when two types
// receive the same number of votes.
type DataType int

const (
	TypeUnknown DataType = iota
	Integer
	Float
	Date
	Time
	DateTime
	Coordinates
	Text
)

var dataTypeNames = [...]string{
	TypeUnknown: "Unknown",
	Integer:     "Integer",
	Float:       "Float",
	Date:        "Date",
	Time:        "Time",
	DateTime:    "DateTime",
	Coordinates: "Coordinates",
	Text:        "Text",
}

func (d DataType) String() string {
	if d < 0 || int(d) >= len(dataTypeNames) {
		return "Unknown"
	}
	return dataTypeNames[d]
}

func (d DataType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Column describes one profiled column.
type Column struct {
	Index          int            `json:"index"`
	Header         string         `json:"header"`
	Classification Classification `json:"classification"`
	DataType       DataType       `json:"data_type"`
}

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$|^\d{2}/\d{2}/\d{4}$`)
	timePattern     = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?$`)
	coordPattern    = regexp.MustCompile(`^-?\d+\.\d+,\s*-?\d+\.\d+$|^\(-?\d+\.\d+,\s*-?\d+\.\d+\)$`)
)

// IsNumeric reports whether v parses as a 64-bit float.
func IsNumeric(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

// DetectType returns the first matching type for a single value.
func DetectType(v string) DataType {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return Integer
	}
	if IsNumeric(v) {
		return Float
	}
	switch {
	case datePattern.MatchString(v):
		return Date
	case timePattern.MatchString(v):
		return Time
	case dateTimePattern.MatchString(v):
		return DateTime
	case coordPattern.MatchString(v):
		return Coordinates
	}
	return Text
}

// Classify profiles a full column. Ties between numeric and non-numeric
// votes resolve to Quantitative; empty strings vote Qualitative.
func Classify(values []string) (Classification, DataType) {
	var quant, qual int
	var votes [len(dataTypeNames)]int
	for _, v := range values {
		if IsNumeric(v) {
			quant++
		} else {
			qual++
		}
		votes[DetectType(v)]++
	}
	class := Qualitative
	if quant >= qual {
		class = Quantitative
	}
	best := TypeUnknown
	for t := Integer; t <= Text; t++ {
		if votes[t] > votes[best] {
			best = t
		}
	}
	return class, best
}

// ProfileColumns classifies several columns concurrently. fetch must be safe
// for concurrent use; each call reads one full column.
func ProfileColumns(ctx context.Context, headers []string, fetch func(context.Context, int) ([]string, error), workers int) ([]Column, error) {
	out := make([]Column, len(headers))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, h := range headers {
		i, h := i, h
		g.Go(func() error {
			values, err := fetch(ctx, i)
			if err != nil {
				return err
			}
			class, dt := Classify(values)
			out[i] = Column{Index: i, Header: h, Classification: class, DataType: dt}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
