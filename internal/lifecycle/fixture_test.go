package lifecycle

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/grouplock"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testStart = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	conn     *gorm.DB
	clock    *testClock
	payments *payment.StubProvider
	recorder *notify.Recorder
	svc      *Service
	supplier models.User
	product  models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	f := &fixture{
		conn:     conn,
		clock:    &testClock{now: testStart},
		payments: payment.NewStubProvider(nil),
		recorder: &notify.Recorder{},
	}
	f.svc = f.newService(grouplock.NewMemoryLocker())
	f.supplier = f.user(t, models.UserRoleSupplier)
	f.product = models.Product{
		SupplierID:     f.supplier.ID,
		Name:           "Rice 25kg",
		PriceSolo:      decimal.NewFromInt(1200),
		PriceGroupBase: decimal.NewFromInt(1000),
		Status:         models.ProductStatusApproved,
	}
	require.NoError(t, conn.Omit("Supplier").Create(&f.product).Error)
	return f
}

func (f *fixture) newService(locks grouplock.Locker) *Service {
	return New(f.conn, Options{
		Locks:    locks,
		Payments: f.payments,
		Notifier: f.recorder,
		Now:      f.clock.Now,
	})
}

func (f *fixture) user(t *testing.T, role models.UserRole) models.User {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.User{}).Count(&count).Error)
	u := models.User{
		Email:        fmt.Sprintf("user%d@example.com", count+1),
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     fmt.Sprintf("User%d", count+1),
		Role:         role,
		IsVerified:   true,
	}
	require.NoError(t, f.conn.Create(&u).Error)
	return u
}

func (f *fixture) members(t *testing.T, n int) []models.User {
	t.Helper()
	out := make([]models.User, n)
	for i := range out {
		out[i] = f.user(t, models.UserRoleMember)
	}
	return out
}

func (f *fixture) input(minParticipants, maxParticipants int) CreateInput {
	return CreateInput{
		ProductID:       f.product.ID,
		Name:            "Rice bulk order",
		MinParticipants: minParticipants,
		MaxParticipants: maxParticipants,
		EndDate:         testStart.Add(48 * time.Hour),
		DiscountCurve: []models.DiscountTier{
			{Participants: 5, DiscountPercent: decimal.NewFromInt(10)},
			{Participants: 10, DiscountPercent: decimal.NewFromInt(20)},
		},
	}
}

func (f *fixture) group(t *testing.T, minParticipants, maxParticipants int) *GroupView {
	t.Helper()
	view, err := f.svc.CreateGroup(t.Context(), f.input(minParticipants, maxParticipants), f.supplier.ID)
	require.NoError(t, err)
	return view
}

func (f *fixture) reload(t *testing.T, groupID uint64) models.Group {
	t.Helper()
	var group models.Group
	require.NoError(t, f.conn.Where("id = ?", groupID).Take(&group).Error)
	return group
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
