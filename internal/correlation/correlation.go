package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/fileflow-cli/internal/profile"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmpty           = errors.New("correlation: empty series")
	ErrLengthMismatch  = errors.New("correlation: series lengths differ")
	ErrNotQuantitative = errors.New("correlation requires exactly two quantitative columns")
)

// TiePolicy selects how equal values are ranked for Spearman.
type TiePolicy int

const (
	// AverageRank gives tied values the mean of the positions they occupy.
	AverageRank TiePolicy = iota
	// MinRank gives every tied value the rank of the first one in sorted order.
	MinRank
)

// ParseTiePolicy accepts "average" or "min".
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "average", "avg":
		return AverageRank, nil
	case "min", "minimum":
		return MinRank, nil
	}
	return AverageRank, fmt.Errorf("invalid spearman tie policy: %s (use average or min)", s)
}

func (p TiePolicy) String() string {
	if p == MinRank {
		return "min"
	}
	return "average"
}

// Options tunes Compute.
type Options struct {
	Ties TiePolicy
}

// Result of comparing two numeric series.
type Result struct {
	Pearson    float64 `json:"pearson"`
	Spearman   float64 `json:"spearman"`
	Covariance float64 `json:"covariance"`
	N          int     `json:"n"`
	Dropped    int     `json:"dropped"`
}

// Compute runs the three metrics concurrently over equal-length series.
func Compute(ctx context.Context, x, y []float64, opt Options) (Result, error) {
	if len(x) == 0 || len(y) == 0 {
		return Result{}, ErrEmpty
	}
	if len(x) != len(y) {
		return Result{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	res := Result{N: len(x)}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Pearson = Pearson(x, y)
		return ctx.Err()
	})
	g.Go(func() error {
		res.Spearman = Spearman(x, y, opt.Ties)
		return ctx.Err()
	})
	g.Go(func() error {
		res.Covariance = Covariance(x, y)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Pearson returns 0 when either series has no spread. Callers must pass
// equal, non-zero lengths.
func Pearson(x, y []float64) float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n
	var num, dx, dy float64
	for i := range x {
		a := x[i] - mx
		b := y[i] - my
		num += a * b
		dx += a * a
		dy += b * b
	}
	if dx == 0 || dy == 0 {
		return 0
	}
	r := num / math.Sqrt(dx*dy)
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Spearman is Pearson over the ranks of x and y.
func Spearman(x, y []float64, ties TiePolicy) float64 {
	return Pearson(Rank(x, ties), Rank(y, ties))
}

// Rank assigns 1-based ranks after a stable ascending sort.
func Rank(vals []float64, ties TiePolicy) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	ranks := make([]float64, len(vals))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && vals[idx[end]] == vals[idx[start]] {
			end++
		}
		r := float64(start + 1)
		if ties == AverageRank {
			r = float64(start+1+end) / 2
		}
		for k := start; k < end; k++ {
			ranks[idx[k]] = r
		}
		start = end
	}
	return ranks
}

// Covariance is the sample covariance (divisor n-1); 0 below two pairs.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// MissingPolicy decides what happens to cells that do not parse as numbers.
type MissingPolicy int

const (
	// SkipMissing drops the row pair when either cell fails to parse.
	SkipMissing MissingPolicy = iota
	// ZeroMissing substitutes 0 for the failing cell.
	ZeroMissing
	// ErrorMissing stops at the first failing cell.
	ErrorMissing
)

func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipMissing, nil
	case "zero":
		return ZeroMissing, nil
	case "error":
		return ErrorMissing, nil
	}
	return SkipMissing, fmt.Errorf("invalid missing-value policy: %s (use skip, zero or error)", s)
}

func (p MissingPolicy) String() string {
	switch p {
	case ZeroMissing:
		return "zero"
	case ErrorMissing:
		return "error"
	default:
		return "skip"
	}
}

// CellError reports a value that could not be parsed as a number.
type CellError struct {
	Row    int // 1-based data row
	Column string
	Value  string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %q: not a number: %q", e.Row, e.Column, e.Value)
}

// Series is one raw column prepared for ParsePair.
type Series struct {
	Name   string
	Values []string
}

// ParsePair converts two raw columns to aligned float slices. The second
// return value counts row pairs dropped by SkipMissing.
func ParsePair(xs, ys Series, policy MissingPolicy) ([]float64, []float64, int, error) {
	if len(xs.Values) != len(ys.Values) {
		return nil, nil, 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(xs.Values), len(ys.Values))
	}
	x := make([]float64, 0, len(xs.Values))
	y := make([]float64, 0, len(ys.Values))
	dropped := 0
	for i := range xs.Values {
		a, errA := strconv.ParseFloat(xs.Values[i], 64)
		b, errB := strconv.ParseFloat(ys.Values[i], 64)
		if errA == nil && errB == nil {
			x = append(x, a)
			y = append(y, b)
			continue
		}
		switch policy {
		case SkipMissing:
			dropped++
			continue
		case ZeroMissing:
			if errA != nil {
				a = 0
			}
			if errB != nil {
				b = 0
			}
			x = append(x, a)
			y = append(y, b)
		case ErrorMissing:
			if errA != nil {
				return nil, nil, 0, &CellError{Row: i + 1, Column: xs.Name, Value: xs.Values[i]}
			}
			return nil, nil, 0, &CellError{Row: i + 1, Column: ys.Name, Value: ys.Values[i]}
		}
	}
	return x, y, dropped, nil
}

// RequireQuantitative validates the caller's column selection.
func RequireQuantitative(cols ...profile.Column) error {
	if len(cols) != 2 {
		return ErrNotQuantitative
	}
	for _, c := range cols {
		if c.Classification != profile.Quantitative {
			return fmt.Errorf("%w: %q is %s", ErrNotQuantitative, c.Header, c.Classification)
		}
	}
	return nil
}

// ColumnReader is the part of an opened source Between reads from.
type ColumnReader interface {
	Column(ctx context.Context, index int) (profile.Column, error)
	FullColumn(ctx context.Context, index int) ([]string, error)
}

// Between profiles two columns of src, rejects any that are not
// quantitative and correlates their parsed values.
func Between(ctx context.Context, src ColumnReader, xi, yi int, policy MissingPolicy, opt Options) (Result, error) {
	cx, err := src.Column(ctx, xi)
	if err != nil {
		return Result{}, err
	}
	cy, err := src.Column(ctx, yi)
	if err != nil {
		return Result{}, err
	}
	if err := RequireQuantitative(cx, cy); err != nil {
		return Result{}, err
	}
	xv, err := src.FullColumn(ctx, xi)
	if err != nil {
		return Result{}, fmt.Errorf("read column %q: %w", cx.Header, err)
	}
	yv, err := src.FullColumn(ctx, yi)
	if err != nil {
		return Result{}, fmt.Errorf("read column %q: %w", cy.Header, err)
	}
	x, y, dropped, err := ParsePair(Series{Name: cx.Header, Values: xv}, Series{Name: cy.Header, Values: yv}, policy)
	if err != nil {
		return Result{}, err
	}
	res, err := Compute(ctx, x, y, opt)
	if err != nil {
		return Result{}, err
	}
	res.Dropped = dropped
	return res, nil
}

// Text renders the labelled block printed by the CLI.
func (r Result) Text(xName, yName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[CORRELATION] %s ~ %s\n", xName, yName)
	fmt.Fprintf(&b, "Pairs: %d\n", r.N)
	if r.Dropped > 0 {
		fmt.Fprintf(&b, "Dropped: %d\n", r.Dropped)
	}
	fmt.Fprintf(&b, "Pearson: %.6f\n", r.Pearson)
	fmt.Fprintf(&b, "Spearman: %.6f\n", r.Spearman)
	fmt.Fprintf(&b, "Covariance: %.6f\n", r.Covariance)
	return b.String()
}
