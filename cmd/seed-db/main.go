package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, available_stock, category, brand)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name            = EXCLUDED.name,
    price           = EXCLUDED.price,
    available_stock = EXCLUDED.available_stock,
    category        = EXCLUDED.category,
    brand           = EXCLUDED.brand
`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Stock, p.Category, p.Brand,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertDiscountSQL = `
INSERT INTO discounts (id, code, discount_type, value, min_purchase, max_uses, valid_from, valid_until, active, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    value         = EXCLUDED.value,
    min_purchase  = EXCLUDED.min_purchase,
    max_uses      = EXCLUDED.max_uses,
    valid_from    = EXCLUDED.valid_from,
    valid_until   = EXCLUDED.valid_until,
    active        = EXCLUDED.active,
    description   = EXCLUDED.description
`

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding launch discounts")

	min50 := decimal.NewFromInt(50)
	yearEnd := time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC)

	type seedDiscount struct {
		id          string
		code        string
		kind        string
		value       decimal.Decimal
		minPurchase *decimal.Decimal
		maxUses     int
		validFrom   *time.Time
		validUntil  *time.Time
		description string
	}

	discounts := []seedDiscount{
		{
			id:          "welcome10",
			code:        "WELCOME10",
			kind:        "percentage",
			value:       decimal.NewFromInt(10),
			minPurchase: &min50,
			validUntil:  &yearEnd,
			description: "Welcome: 10% off orders of $50 or more",
		},
		{
			id:          "ship5",
			code:        "SHIP5",
			kind:        "fixed",
			value:       decimal.RequireFromString("5.99"),
			maxUses:     1000,
			description: "Flat $5.99 off any order",
		},
	}

	for _, d := range discounts {
		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			d.id, d.code, d.kind, d.value, d.minPurchase, d.maxUses,
			d.validFrom, d.validUntil, true, d.description,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.code)
		}

		slog.Info("upserted discount", slog.String("code", d.code), slog.String("description", d.description))
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    name     = EXCLUDED.name,
    scopes   = EXCLUDED.scopes,
    active   = EXCLUDED.active
`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default test key", []string{"checkout", "admin"}, true,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default test key"))

	return nil
}
