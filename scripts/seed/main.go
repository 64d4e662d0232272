package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/age-b2b/backoffice/internal/app"
	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/platform/cache"
	"github.com/age-b2b/backoffice/internal/platform/db"
	"github.com/age-b2b/backoffice/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding products...")
	if err := seedProducts(ctx, pool); err != nil {
		log.Fatalf("seed products: %v", err)
	}
	fmt.Println("→ Seeding clients...")
	clientID, err := seedClient(ctx, pool)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	fmt.Println("→ Seeding lots...")
	if err := seedLots(ctx, pool, cfg); err != nil {
		log.Fatalf("seed lots: %v", err)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()

	fmt.Println("→ Issuing development sessions...")
	sessions := shared.NewSessionStore(redisClient, cfg.SessionPrefix, cfg.SessionTTL)
	staffToken, err := sessions.Issue(ctx, shared.StaffPrincipal(1))
	if err != nil {
		log.Fatalf("issue staff session: %v", err)
	}
	clientToken, err := sessions.Issue(ctx, shared.ClientPrincipal(clientID))
	if err != nil {
		log.Fatalf("issue client session: %v", err)
	}
	fmt.Println("  staff token: ", staffToken)
	fmt.Println("  client token:", clientToken)

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	products := []struct {
		code, name             string
		supply, consumer, cost string
	}{
		{"VC-SERUM-30", "Vitamin C Serum 30ml", "12000", "25000", "7000"},
		{"HY-TONER-150", "Hyaluronic Toner 150ml", "9500", "19000", "5200"},
		{"SUN-SPF50-50", "Daily Sunscreen SPF50 50ml", "8000", "16000", "4100"},
		{"CICA-CREAM-80", "Cica Repair Cream 80ml", "14500", "29000", "8300"},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (code, name, supply_price, consumer_price, cost_price, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO NOTHING`,
			p.code, p.name,
			decimal.RequireFromString(p.supply),
			decimal.RequireFromString(p.consumer),
			decimal.RequireFromString(p.cost),
			string(catalog.StatusOnSale),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedClient(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	const name = "Seoul Beauty Trading"
	var id int64
	err := pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO clients (business_name, email, receiver_name, receiver_phone, zip_code, address)
			SELECT $1, 'orders@seoulbeauty.example', 'Kim Minji', '010-1234-5678', '04524', 'Sejong-daero 110, Jung-gu'
			WHERE NOT EXISTS (SELECT 1 FROM clients WHERE business_name = $1)
			RETURNING id
		)
		SELECT id FROM inserted
		UNION ALL
		SELECT id FROM clients WHERE business_name = $1
		LIMIT 1`, name).Scan(&id)
	return id, err
}

func seedLots(ctx context.Context, pool *pgxpool.Pool, cfg *app.Config) error {
	products := catalog.NewRepository(pool)
	service := inventory.NewService(inventory.NewRepository(pool), products, shared.NewAuditLogger(pool), nil, inventory.ServiceConfig{
		Location: cfg.Location(),
	})
	rows, err := pool.Query(ctx, `
		SELECT p.id FROM products p
		WHERE NOT EXISTS (SELECT 1 FROM lots l WHERE l.product_id = p.id)
		ORDER BY p.id`)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	today := time.Now().In(cfg.Location())
	actor := shared.StaffPrincipal(1)
	for _, id := range ids {
		// one lot per grade band so FIFO and the dashboard have something to show
		for i, days := range []int{400, 200, 60} {
			_, err := service.RegisterInbound(ctx, inventory.InboundInput{
				ProductID:   id,
				Quantity:    int64(100 * (i + 1)),
				ExpiryDate:  today.AddDate(0, 0, days),
				InboundDate: today,
				Location:    fmt.Sprintf("A-%02d", i+1),
				Note:        "seed",
				Actor:       actor,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
