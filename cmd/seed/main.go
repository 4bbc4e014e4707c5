package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/config"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	pg "github.com/bmosoluciones/now-lms-payments/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	courseRepo := pg.NewCourseRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)

	// If courses already exist, do nothing.
	existing, err := courseRepo.ListAll(ctx, nil)
	if err != nil {
		log.Fatalf("list courses: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d courses already present. No changes.\n", len(existing))
		for _, c := range existing {
			fmt.Printf("  - %s: %s (paid=%v, price=%s %s)\n", c.Code, c.Title, c.Paid, c.Price, c.Currency)
		}
		return
	}

	now := time.Now()
	courses := []*model.Course{
		{Code: "free-101", Title: "Introduction to Online Learning", Paid: false, Price: decimal.Zero, Currency: "USD", Auditable: false, CreatedAt: now, UpdatedAt: now},
		{Code: "go-201", Title: "Backend Development with Go", Paid: true, Price: decimal.NewFromInt(49), Currency: "USD", Auditable: true, CreatedAt: now, UpdatedAt: now},
		{Code: "sql-301", Title: "Advanced PostgreSQL", Paid: true, Price: decimal.NewFromFloat(79.99), Currency: "USD", Auditable: false, CreatedAt: now, UpdatedAt: now},
	}
	for _, c := range courses {
		if err := courseRepo.Save(ctx, nil, c); err != nil {
			log.Fatalf("seed course %q: %v", c.Code, err)
		}
		fmt.Printf("seeded course: %s (%s)\n", c.Code, c.Title)
	}

	coupons := []*model.Coupon{
		{Code: "LAUNCH25", Type: model.DiscountPercentage, Value: decimal.NewFromInt(25), ValidFrom: now, ValidUntil: now.AddDate(0, 3, 0), UsageLimit: 100, CreatedAt: now},
		{Code: "TENOFF", Type: model.DiscountFixed, Value: decimal.NewFromInt(10), ValidFrom: now, ValidUntil: now.AddDate(1, 0, 0), UsageLimit: 500, CreatedAt: now},
	}
	for _, cp := range coupons {
		if err := couponRepo.Save(ctx, nil, cp); err != nil {
			log.Fatalf("seed coupon %q: %v", cp.Code, err)
		}
		fmt.Printf("seeded coupon: %s\n", cp.Code)
	}

	fmt.Println("Seeding complete.")
}
