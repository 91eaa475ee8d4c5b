package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/storage/memory"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    coupon.Rule
		wantErr string
	}{
		{
			name: "Percentage",
			line: "welcome10,percentage,10,Welcome offer",
			want: coupon.Rule{
				Coupon:      coupon.Coupon{Code: "WELCOME10", Kind: coupon.KindPercentage},
				Description: "Welcome offer",
			},
		},
		{
			name: "FixedWithCommaInDescription",
			line: " FIVEOFF , Fixed , 500 , 5 off, today only",
			want: coupon.Rule{
				Coupon:      coupon.Coupon{Code: "FIVEOFF", Kind: coupon.KindFixed},
				Description: "5 off, today only",
			},
		},
		{name: "TooFewFields", line: "CODE1234,fixed", wantErr: "expected at least 3 fields"},
		{name: "ShortCode", line: "AB,fixed,1", wantErr: "length must be between"},
		{name: "UnknownKind", line: "CODE1234,bogo,1", wantErr: `unsupported kind "bogo"`},
		{name: "BadValue", line: "CODE1234,fixed,abc", wantErr: "parse value"},
		{name: "ZeroValue", line: "CODE1234,fixed,0", wantErr: "value must be positive"},
		{name: "PercentageOver100", line: "CODE1234,percentage,150", wantErr: "percentage above 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Code, got.Code)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Description, got.Description)
			assert.True(t, got.Value.IsPositive())
		})
	}
}

func TestScan_SkipsBlankAndComments(t *testing.T) {
	path := writeGz(t, t.TempDir(), "a.gz", "# header", "", "CODE0001,fixed,1", "  ", "CODE0002,fixed,2")

	var lines []string
	require.NoError(t, Scan(context.Background(), path, func(line string) { lines = append(lines, line) }))
	assert.Equal(t, []string{"CODE0001,fixed,1", "CODE0002,fixed,2"}, lines)
}

func TestRun_AcceptsCodesInMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "SHARED01,percentage,10,first", "ONLYINA1,fixed,5", "broken"),
		writeGz(t, dir, "b.gz", "shared01,fixed,99,second", "SHARED02,fixed,3"),
		writeGz(t, dir, "c.gz", "SHARED02,fixed,7", "ONLYINC1,fixed,1"),
	}
	repo := memory.NewCouponRepository()

	stats, err := Run(context.Background(), files, repo, Options{Capacity: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Lines)
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, 2, stats.Accepted)

	ctx := context.Background()
	rule, err := repo.FindByCode(ctx, "SHARED01")
	require.NoError(t, err)
	assert.Equal(t, coupon.KindPercentage, rule.Kind, "the first file wins")
	assert.Equal(t, "first", rule.Description)

	rule, err = repo.FindByCode(ctx, "SHARED02")
	require.NoError(t, err)
	assert.Equal(t, "3", rule.Value.String())

	_, err = repo.FindByCode(ctx, "ONLYINA1")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	_, err = repo.FindByCode(ctx, "ONLYINC1")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestRun_MinFilesOne(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "ALPHA001,fixed,1", "BRAVO002,fixed,2")}
	repo := memory.NewCouponRepository()

	stats, err := Run(context.Background(), files, repo, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Accepted)
}

type failingUpserter struct {
	mu    sync.Mutex
	calls int
}

func (f *failingUpserter) Upsert(context.Context, coupon.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("connection reset")
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Run(ctx, nil, memory.NewCouponRepository(), Options{})
	require.EqualError(t, err, "no input files")

	_, err = Run(ctx, []string{filepath.Join(t.TempDir(), "missing.gz")}, memory.NewCouponRepository(), Options{})
	require.Error(t, err)

	files := []string{writeGz(t, t.TempDir(), "a.gz", "ALPHA001,fixed,1")}
	_, err = Run(ctx, files, &failingUpserter{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert coupon ALPHA001: connection reset")
}
