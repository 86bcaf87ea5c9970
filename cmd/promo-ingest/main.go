// Command promo-ingest loads marketing promo-code exports into the discounts
// table. The exports are three large gzipped files of one code per line; a
// code counts as redeemable only when it occurs in at least two of them.
//
// The files are far too large to hold in memory, so ingestion is two
// streaming passes: the first builds a bloom filter per file, the second
// re-reads each file and forwards codes that any other file's filter claims
// to a collector, which tracks the set of source files each candidate was
// actually read from. Bloom false positives survive pass 2 only if the code
// genuinely occurred in two files, so the final set is exact.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/craftedbits/storefront/internal/repository"
)

const (
	expectedCodesPerFile = 120_000_000
	falsePositiveRate    = 0.001
	sourceFileCount      = 3
	minSourceFiles       = 2
	progressEvery        = 10_000_000
	codeLenMin           = 8
	codeLenMax           = 10
	writeBatchSize       = 500
)

// promoRule is the discount a recognized code grants. Codes absent from the
// table get defaultRule.
type promoRule struct {
	kind        string
	value       string
	minPurchase string
	description string
}

var promoRules = map[string]promoRule{
	"FIFTYOFF": {kind: "percentage", value: "50", description: "50% off entire order"},
	"SIXTYOFF": {kind: "percentage", value: "60", description: "60% off entire order"},
	"GNULINUX": {kind: "percentage", value: "15", description: "Open source discount: 15% off"},
	"OVER9000": {kind: "fixed", value: "9", description: "$9 off your order"},
	"HAPPYHRS": {kind: "percentage", value: "18", description: "Happy Hours: 18% off"},
	"BIGSPEND": {kind: "percentage", value: "25", minPurchase: "200", description: "25% off orders of $200 or more"},
}

var defaultRule = promoRule{
	kind:        "percentage",
	value:       "10",
	description: "Valid promo code: 10% off",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promobaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	ing, err := newIngest(dataDir)
	if err != nil {
		return err
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(ing.files)))
	if err := ing.buildFilters(ctx); err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-matching candidate codes")
	codes, err := ing.collectValidCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "collect valid codes")
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return errors.Wrap(writeDiscounts(ctx, pool, codes), "write discounts")
}

// ingest carries the per-file state across the two passes.
type ingest struct {
	files   []string
	filters []*bloom.BloomFilter
}

func newIngest(dataDir string) (*ingest, error) {
	files := make([]string, sourceFileCount)
	for i := range files {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("promobase%d.gz", i+1))
		if _, err := os.Stat(files[i]); err != nil {
			return nil, errors.Wrapf(err, "check file %s", files[i])
		}
	}
	return &ingest{
		files:   files,
		filters: make([]*bloom.BloomFilter, len(files)),
	}, nil
}

// buildFilters streams every file once, concurrently, recording well-formed
// codes into that file's bloom filter.
func (in *ingest) buildFilters(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range in.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expectedCodesPerFile, falsePositiveRate)
			n, err := streamCodes(ctx, in.files[i], func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "filter for file %d", i+1)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("codes", n))
			in.filters[i] = filter
			return nil
		})
	}
	return g.Wait()
}

// candidate is a code read from one source file that some other file's
// filter also claims to contain.
type candidate struct {
	code string
	file int
}

// collectValidCodes streams every file a second time. Workers forward codes
// that any OTHER file's filter matches; a single collector records which
// source files each candidate was actually read from and keeps codes seen in
// at least minSourceFiles of them. Filter hits that were false positives
// never accumulate a second source bit, so they drop out here.
func (in *ingest) collectValidCodes(ctx context.Context) ([]string, error) {
	hits := make(chan candidate, 4096)

	sources := make(map[string]uint)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for c := range hits {
			sources[c.code] |= 1 << uint(c.file)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	for i := range in.files {
		g.Go(func() error {
			n, err := streamCodes(ctx, in.files[i], func(code string) {
				if in.matchesOtherFile(code, i) {
					hits <- candidate{code: code, file: i}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Uint64("codes", n))
			return nil
		})
	}
	err := g.Wait()
	close(hits)
	<-collected
	if err != nil {
		return nil, err
	}

	var valid []string
	for code, mask := range sources {
		if bits.OnesCount(mask) >= minSourceFiles {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

func (in *ingest) matchesOtherFile(code string, self int) bool {
	for j, f := range in.filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// streamCodes reads a gzipped code file line by line, invoking fn for each
// well-formed code, and returns how many codes it saw.
func streamCodes(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		code := scanner.Text()
		if len(code) < codeLenMin || len(code) > codeLenMax {
			continue
		}
		count++
		if count%progressEvery == 0 {
			slog.Info("progress", slog.String("file", filepath.Base(path)), slog.Uint64("codes", count))
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "scan %s", path)
	}
	return count, nil
}

const upsertDiscountSQL = `
INSERT INTO discounts (id, code, discount_type, value, min_purchase, max_uses, active, description)
VALUES ($1, $2, $3, $4, $5, 0, TRUE, $6)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    value         = EXCLUDED.value,
    min_purchase  = EXCLUDED.min_purchase,
    description   = EXCLUDED.description,
    active        = TRUE
`

// writeDiscounts upserts the valid codes in batches so millions of rows do
// not take millions of round trips.
func writeDiscounts(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing discounts", slog.Int("count", len(codes)))

	for start := 0; start < len(codes); start += writeBatchSize {
		end := min(start+writeBatchSize, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			rule, ok := promoRules[code]
			if !ok {
				rule = defaultRule
			}

			value, err := decimal.NewFromString(rule.value)
			if err != nil {
				return errors.Wrapf(err, "parse value for code %s", code)
			}
			var minPurchase *decimal.Decimal
			if rule.minPurchase != "" {
				mp, err := decimal.NewFromString(rule.minPurchase)
				if err != nil {
					return errors.Wrapf(err, "parse minimum purchase for code %s", code)
				}
				minPurchase = &mp
			}

			batch.Queue(upsertDiscountSQL,
				strings.ToLower(code), code, rule.kind, value, minPurchase, rule.description)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert batch at offset %d", start)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}

	return nil
}
