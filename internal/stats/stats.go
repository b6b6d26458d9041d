package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/fileflow-cli/internal/profile"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result holds the descriptive statistics of one column. Numeric fields are
// NaN when the column had no usable values.
type Result struct {
	Header         string
	Classification profile.Classification
	DataType       profile.DataType
	Count          int
	Distinct       int
	Minimum        float64
	Maximum        float64
	Mean           float64
	Median         float64
	Mode           string
	Range          float64
	Variance       float64
	StdDev         float64
	Q1             float64
	Q3             float64
}

// Display is the text rendering of a Result.
type Display struct {
	Header         string `json:"header"`
	Classification string `json:"classification"`
	DataType       string `json:"data_type"`
	Count          string `json:"count"`
	Distinct       string `json:"distinct"`
	Minimum        string `json:"minimum"`
	Maximum        string `json:"maximum"`
	Mean           string `json:"mean"`
	Median         string `json:"median"`
	Mode           string `json:"mode"`
	Range          string `json:"range"`
	Variance       string `json:"variance"`
	StdDev         string `json:"std_dev"`
	Q1             string `json:"q1"`
	Q3             string `json:"q3"`
}

// ColumnSource yields the full value list of a column.
type ColumnSource interface {
	FullColumn(ctx context.Context, index int) ([]string, error)
}

var counts = message.NewPrinter(language.English)

// Compute branches on the column's classification. Quantitative columns are
// summarised over their parsed values; everything else over the rune length
// of each non-empty string.
func Compute(col profile.Column, values []string) Result {
	res := Result{Header: col.Header, Classification: col.Classification, DataType: col.DataType}
	if col.Classification == profile.Quantitative {
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			nums = append(nums, f)
		}
		res.Distinct, res.Mode = numericDistinctMode(nums)
		summarize(&res, nums)
		return res
	}

	lengths := make([]float64, 0, len(values))
	seen := make(map[string]int)
	var order []string
	for _, v := range values {
		if v == "" {
			continue
		}
		lengths = append(lengths, float64(utf8.RuneCountInString(v)))
		if seen[v] == 0 {
			order = append(order, v)
		}
		seen[v]++
	}
	res.Distinct = len(seen)
	best := 0
	for _, v := range order {
		if seen[v] > best {
			best = seen[v]
			res.Mode = v
		}
	}
	summarize(&res, lengths)
	return res
}

// numericDistinctMode counts distinct bit patterns and returns the most
// frequent value, first seen on ties.
func numericDistinctMode(nums []float64) (int, string) {
	freq := make(map[uint64]int, len(nums))
	var order []uint64
	for _, f := range nums {
		k := math.Float64bits(f)
		if freq[k] == 0 {
			order = append(order, k)
		}
		freq[k]++
	}
	var mode string
	best := 0
	for _, k := range order {
		if freq[k] > best {
			best = freq[k]
			mode = strconv.FormatFloat(math.Float64frombits(k), 'f', 6, 64)
		}
	}
	return len(freq), mode
}

func summarize(res *Result, vals []float64) {
	res.Count = len(vals)
	if len(vals) == 0 {
		nan := math.NaN()
		res.Minimum, res.Maximum, res.Mean, res.Median = nan, nan, nan, nan
		res.Range, res.Variance, res.StdDev, res.Q1, res.Q3 = nan, nan, nan, nan, nan
		return
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	res.Minimum = floats.Min(vals)
	res.Maximum = floats.Max(vals)
	res.Mean, res.Variance = stat.PopMeanVariance(vals, nil)
	res.StdDev = math.Sqrt(res.Variance)
	res.Median = Median(sorted)
	res.Range = res.Maximum - res.Minimum
	res.Q1 = Quantile(sorted, 0.25)
	res.Q3 = Quantile(sorted, 0.75)
}

// Median of an ascending slice; even counts average the two central values.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Quantile interpolates linearly at position (n-1)*q of an ascending slice.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// FormatNumber renders a statistic with 6 decimals, or n/a for NaN.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return "n/a"
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// FormatCount renders a count with grouped thousands.
func FormatCount(n int) string {
	return counts.Sprintf("%d", n)
}

func (r Result) Display() Display {
	mode := r.Mode
	if mode == "" {
		mode = "n/a"
	}
	return Display{
		Header:         r.Header,
		Classification: r.Classification.String(),
		DataType:       r.DataType.String(),
		Count:          FormatCount(r.Count),
		Distinct:       FormatCount(r.Distinct),
		Minimum:        FormatNumber(r.Minimum),
		Maximum:        FormatNumber(r.Maximum),
		Mean:           FormatNumber(r.Mean),
		Median:         FormatNumber(r.Median),
		Mode:           mode,
		Range:          FormatNumber(r.Range),
		Variance:       FormatNumber(r.Variance),
		StdDev:         FormatNumber(r.StdDev),
		Q1:             FormatNumber(r.Q1),
		Q3:             FormatNumber(r.Q3),
	}
}

// Text renders the labelled block printed by the CLI.
func (r Result) Text() string {
	d := r.Display()
	var b strings.Builder
	fmt.Fprintf(&b, "[STATISTICS] %s\n", d.Header)
	fmt.Fprintf(&b, "Classification: %s\n", d.Classification)
	fmt.Fprintf(&b, "Data type: %s\n", d.DataType)
	if r.Classification != profile.Quantitative {
		b.WriteString("Measured on: value length\n")
	}
	fmt.Fprintf(&b, "Count: %s\n", d.Count)
	fmt.Fprintf(&b, "Distinct: %s\n", d.Distinct)
	fmt.Fprintf(&b, "Minimum: %s\n", d.Minimum)
	fmt.Fprintf(&b, "Maximum: %s\n", d.Maximum)
	fmt.Fprintf(&b, "Mean: %s\n", d.Mean)
	fmt.Fprintf(&b, "Median: %s\n", d.Median)
	fmt.Fprintf(&b, "Mode: %s\n", d.Mode)
	fmt.Fprintf(&b, "Range: %s\n", d.Range)
	fmt.Fprintf(&b, "Variance: %s\n", d.Variance)
	fmt.Fprintf(&b, "Std dev: %s\n", d.StdDev)
	fmt.Fprintf(&b, "Q1: %s\n", d.Q1)
	fmt.Fprintf(&b, "Q3: %s\n", d.Q3)
	return b.String()
}

// ComputeColumns computes statistics for several columns concurrently. Each
// worker reads its own full column from src; results keep the order of cols.
func ComputeColumns(ctx context.Context, src ColumnSource, cols []profile.Column, workers int) ([]Result, error) {
	out := make([]Result, len(cols))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, col := range cols {
		i, col := i, col
		g.Go(func() error {
			values, err := src.FullColumn(ctx, col.Index)
			if err != nil {
				return fmt.Errorf("read column %q: %w", col.Header, err)
			}
			out[i] = Compute(col, values)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
