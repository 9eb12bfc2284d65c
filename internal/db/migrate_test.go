package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/shopspring/decimal"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if DialectName(conn) != DialectSQLite {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, table := range []string{"users", "products", "buying_groups", "group_members", "notifications"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestActiveMemberIndexRejectsDuplicates(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "members.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := models.User{Email: "member@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	product := models.Product{SupplierID: user.ID, Name: "Rice", PriceGroupBase: decimal.NewFromInt(1000), Status: models.ProductStatusApproved}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	group := models.Group{
		ProductID:       product.ID,
		Name:            "Rice bulk",
		MinParticipants: 2,
		MaxParticipants: 5,
		EndDate:         time.Now().Add(time.Hour),
		Status:          models.GroupStatusOpen,
		CreatedBy:       user.ID,
	}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}

	now := time.Now()
	first := models.GroupMember{GroupID: group.ID, UserID: user.ID, JoinedAt: now}
	if err := conn.Create(&first).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	dup := models.GroupMember{GroupID: group.ID, UserID: user.ID, JoinedAt: now}
	errDup := conn.Create(&dup).Error
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}

	if err := conn.Model(&first).Update("left_at", now).Error; err != nil {
		t.Fatalf("leave: %v", err)
	}
	rejoin := models.GroupMember{GroupID: group.ID, UserID: user.ID, JoinedAt: now}
	if err := conn.Create(&rejoin).Error; err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost:5432/db":      true,
		"postgresql://localhost/db":             true,
		"host=localhost user=gbb dbname=gbb":    true,
		"file:/tmp/groupbuy.db":                 false,
		"groupbuy.db?_pragma=journal_mode(WAL)": false,
	}
	for dsn, want := range cases {
		if got := IsPostgresDSN(dsn); got != want {
			t.Fatalf("IsPostgresDSN(%q)=%v, want %v", dsn, got, want)
		}
	}
}
