package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Service, *gorm.DB, models.User) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	supplier := models.User{Email: "supplier@example.com", PasswordHash: "x", FirstName: "Sup", LastName: "Plier", Role: models.UserRoleSupplier}
	if err := conn.Create(&supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return New(conn, func() time.Time { now = now.Add(time.Second); return now }), conn, supplier
}

func input(name string) ProductInput {
	return ProductInput{Name: name, PriceSolo: decimal.NewFromInt(1200), PriceGroupBase: decimal.NewFromInt(1000)}
}

func TestCreateAndReview(t *testing.T) {
	svc, _, supplier := setup(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, supplier.ID, input("Millet 50kg"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if product.Status != models.ProductStatusPending {
		t.Fatalf("expected PENDING, got %s", product.Status)
	}

	approved, err := svc.Review(ctx, product.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.ProductStatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}
	if _, err := svc.Review(ctx, product.ID, false); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on second review, got %v", err)
	}
	if _, err := svc.Review(ctx, 999, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := svc.Archive(ctx, product.ID, supplier.ID+1); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for other supplier, got %v", err)
	}
	archived, err := svc.Archive(ctx, product.ID, supplier.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != models.ProductStatusArchived {
		t.Fatalf("expected ARCHIVED, got %s", archived.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, supplier := setup(t)
	ctx := context.Background()

	bad := []ProductInput{
		input("ab"),
		{Name: "Sugar", PriceSolo: decimal.Zero, PriceGroupBase: decimal.NewFromInt(10)},
		{Name: "Sugar", PriceSolo: decimal.NewFromInt(10), PriceGroupBase: decimal.NewFromInt(20)},
	}
	for i, in := range bad {
		if _, err := svc.CreateProduct(ctx, supplier.ID, in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestList(t *testing.T) {
	svc, _, supplier := setup(t)
	ctx := context.Background()

	for _, name := range []string{"Rice 25kg", "Rice 50kg", "Palm oil"} {
		p, err := svc.CreateProduct(ctx, supplier.ID, input(name))
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if name != "Rice 50kg" {
			if _, err := svc.Review(ctx, p.ID, true); err != nil {
				t.Fatalf("approve %s: %v", name, err)
			}
		}
	}

	page, err := svc.List(ctx, Filter{Status: models.ProductStatusApproved})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.Products[0].Name != "Palm oil" {
		t.Fatalf("unexpected approved page %+v", page)
	}

	page, err = svc.List(ctx, Filter{Search: "rice", Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 || len(page.Products) != 1 || page.Limit != 1 {
		t.Fatalf("unexpected search page %+v", page)
	}
}
