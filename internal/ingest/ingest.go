// Package ingest loads coupon codes from gzip-compressed files into a coupon
// repository. A code is accepted only when it appears in at least MinFiles
// of the input files; membership across files is narrowed down with one
// bloom filter per file before the exact check.
package ingest

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/coupon"
)

// Code length bounds of a well-formed coupon code.
const (
	MinCodeLen = 4
	MaxCodeLen = 32
)

// Upserter stores coupon rules.
type Upserter interface {
	Upsert(ctx context.Context, rule coupon.Rule) error
}

// Options configures Run.
type Options struct {
	// MinFiles is the number of files a code must appear in. Defaults to 2,
	// capped at the number of files.
	MinFiles int
	// Capacity is the expected number of codes per file, used to size the
	// bloom filters. Defaults to 1 000 000.
	Capacity uint
	// FalsePositiveRate of each bloom filter. Defaults to 0.001.
	FalsePositiveRate float64
	// Writers is the number of concurrent upserts. Defaults to 8.
	Writers int
	Logger  *zap.Logger
}

func (o *Options) setDefaults(files int) {
	if o.MinFiles <= 0 {
		o.MinFiles = 2
	}
	o.MinFiles = min(o.MinFiles, files)
	if o.Capacity == 0 {
		o.Capacity = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
	if o.Writers <= 0 {
		o.Writers = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Stats summarises a Run.
type Stats struct {
	Lines     int64
	Malformed int64
	Accepted  int
}

// ParseLine parses "CODE,kind,value[,description]". The code is upper-cased.
func ParseLine(line string) (coupon.Rule, error) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) < 3 {
		return coupon.Rule{}, errors.Errorf("expected at least 3 fields, got %d", len(parts))
	}

	code := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(code) < MinCodeLen || len(code) > MaxCodeLen {
		return coupon.Rule{}, errors.Errorf("code %q: length must be between %d and %d", code, MinCodeLen, MaxCodeLen)
	}
	kind := coupon.Kind(strings.ToLower(strings.TrimSpace(parts[1])))
	if !kind.Valid() {
		return coupon.Rule{}, errors.Errorf("code %q: unsupported kind %q", code, kind)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return coupon.Rule{}, errors.Wrapf(err, "code %q: parse value", code)
	}
	if !value.IsPositive() {
		return coupon.Rule{}, errors.Errorf("code %q: value must be positive", code)
	}
	if kind == coupon.KindPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Rule{}, errors.Errorf("code %q: percentage above 100", code)
	}

	rule := coupon.Rule{Coupon: coupon.Coupon{Code: code, Kind: kind, Value: value}}
	if len(parts) == 4 {
		rule.Description = strings.TrimSpace(parts[3])
	}
	return rule, nil
}

// Scan streams the lines of a gzip file to fn, skipping blank lines and
// lines starting with '#'.
func Scan(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

type candidate struct {
	mask uint64
	rule coupon.Rule
}

// Run ingests files into dst. The rule of a code is taken from the first
// file, in argument order, that contains it.
func Run(ctx context.Context, files []string, dst Upserter, opts Options) (Stats, error) {
	if len(files) == 0 {
		return Stats{}, errors.New("no input files")
	}
	if len(files) > 64 {
		return Stats{}, errors.Errorf("too many input files: %d, at most 64", len(files))
	}
	opts.setDefaults(len(files))
	lg := opts.Logger

	var stats Stats
	var filters []*bloom.BloomFilter
	if opts.MinFiles > 1 {
		lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
		var err error
		if filters, err = buildFilters(ctx, files, opts); err != nil {
			return stats, errors.Wrap(err, "build bloom filters")
		}
	}

	lg.Info("Pass 2: collecting codes", zap.Int("min_files", opts.MinFiles))
	results := make([]map[string]candidate, len(files))
	var lines, malformed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]candidate)
			bit := uint64(1) << uint(i)

			err := Scan(gctx, path, func(line string) {
				lines.Add(1)
				rule, err := ParseLine(line)
				if err != nil {
					malformed.Add(1)
					lg.Debug("Skipping malformed line", zap.String("file", path), zap.Error(err))
					return
				}
				if filters != nil && !seenElsewhere(filters, i, rule.Code) {
					return
				}
				c, ok := found[rule.Code]
				if !ok {
					c.rule = rule
				}
				c.mask |= bit
				found[rule.Code] = c
			})
			if err != nil {
				return errors.Wrapf(err, "collect codes of file %d", i+1)
			}

			lg.Info("Pass 2 complete", zap.String("file", path), zap.Int("candidates", len(found)))
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Lines = lines.Load()
	stats.Malformed = malformed.Load()

	accepted := merge(results, opts.MinFiles)
	stats.Accepted = len(accepted)
	lg.Info("Codes accepted", zap.Int("count", len(accepted)), zap.Int64("malformed", stats.Malformed))

	return stats, write(ctx, dst, accepted, opts)
}

func buildFilters(ctx context.Context, files []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FalsePositiveRate)
			if err := Scan(ctx, path, func(line string) {
				code, _, _ := strings.Cut(line, ",")
				filter.AddString(strings.ToUpper(strings.TrimSpace(code)))
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// seenElsewhere reports whether any filter other than the one of file idx
// may contain code.
func seenElsewhere(filters []*bloom.BloomFilter, idx int, code string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}

// merge combines the per-file candidates and keeps the codes present in at
// least minFiles files, sorted by code.
func merge(results []map[string]candidate, minFiles int) []coupon.Rule {
	merged := make(map[string]candidate)
	for _, found := range results {
		for code, c := range found {
			m, ok := merged[code]
			if !ok {
				m.rule = c.rule
			}
			m.mask |= c.mask
			merged[code] = m
		}
	}

	var out []coupon.Rule
	for _, c := range merged {
		if bits.OnesCount64(c.mask) >= minFiles {
			out = append(out, c.rule)
		}
	}
	slices.SortFunc(out, func(a, b coupon.Rule) int { return strings.Compare(a.Code, b.Code) })
	return out
}

func write(ctx context.Context, dst Upserter, rules []coupon.Rule, opts Options) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(opts.Writers).WithCancelOnError()
	var written atomic.Int64
	for _, rule := range rules {
		p.Go(func(ctx context.Context) error {
			if err := dst.Upsert(ctx, rule); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", rule.Code)
			}
			if n := written.Add(1); n%1000 == 0 {
				opts.Logger.Info("Write progress", zap.Int64("written", n), zap.Int("total", len(rules)))
			}
			return nil
		})
	}
	return p.Wait()
}
