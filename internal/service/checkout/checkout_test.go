package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/payments"
)

type fakeProvider struct {
	sessions map[string]*payments.Session
	created  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]*payments.Session)}
}

func (f *fakeProvider) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	f.created++
	subtotal := int64(0)
	for _, it := range req.LineItems {
		subtotal += it.UnitPrice * int64(it.Quantity)
	}
	sess := &payments.Session{
		ID:          fmt.Sprintf("cs_test_%d", f.created),
		Paid:        false,
		AmountTotal: subtotal - Discount(subtotal, req.PercentOff),
		Metadata:    req.Metadata,
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeProvider) RetrieveSession(_ context.Context, id string) (*payments.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeProvider) markPaid(id string) {
	f.sessions[id].Paid = true
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.Coupon{},
		&models.Order{}, &models.OrderItem{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *fakeProvider) {
	t.Helper()
	provider := newFakeProvider()
	svc := &Service{
		DB:        newTestDB(t),
		Provider:  provider,
		ClientURL: "http://localhost:5173",
	}
	return svc, provider
}

func TestTotals(t *testing.T) {
	items := []Item{
		{ProductID: 1, Price: 2500, Quantity: 2},
		{ProductID: 2, Price: 5000, Quantity: 1},
	}

	subtotal, total := Totals(items, 0)
	assert.Equal(t, int64(10000), subtotal)
	assert.Equal(t, int64(10000), total)

	subtotal, total = Totals(items, 10)
	assert.Equal(t, int64(10000), subtotal)
	assert.Equal(t, int64(9000), total)
}

func TestCreateSession_CouponOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DB.Create(&models.Coupon{
		Code:               "GIFTAAAAAA",
		DiscountPercentage: 10,
		UserID:             2,
		IsActive:           true,
		ExpirationDate:     time.Now().Add(24 * time.Hour),
	}).Error)

	items := []Item{{ProductID: 1, Name: "mug", Price: 10000, Quantity: 1}}

	// Another user's coupon is silently skipped.
	res, err := svc.CreateSession(ctx, 1, items, "GIFTAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.TotalAmount)

	// The owner gets the discount.
	res, err = svc.CreateSession(ctx, 2, items, "GIFTAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), res.TotalAmount)
}

func TestCreateSession_ValidatesItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, 1, nil, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateSession(ctx, 1, []Item{{ProductID: 1, Price: 100, Quantity: 0}}, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateSession(ctx, 1, []Item{{ProductID: 1, Price: -1, Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateSession_WelcomeCouponThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	countCoupons := func(userID uint) int64 {
		var n int64
		require.NoError(t, svc.DB.Model(&models.Coupon{}).Where("user_id = ?", userID).Count(&n).Error)
		return n
	}

	// Exactly at the threshold: no coupon.
	_, err := svc.CreateSession(ctx, 1, []Item{{ProductID: 1, Name: "a", Price: 20000, Quantity: 1}}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), countCoupons(1))

	// One minor unit above: exactly one active coupon.
	_, err = svc.CreateSession(ctx, 1, []Item{{ProductID: 1, Name: "a", Price: 20001, Quantity: 1}}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), countCoupons(1))

	var first models.Coupon
	require.NoError(t, svc.DB.Where("user_id = ?", 1).First(&first).Error)
	assert.True(t, first.IsActive)
	assert.Equal(t, 10, first.DiscountPercentage)
	assert.Contains(t, first.Code, "GIFT")

	// A second qualifying checkout replaces the prior coupon.
	_, err = svc.CreateSession(ctx, 1, []Item{{ProductID: 1, Name: "a", Price: 30000, Quantity: 1}}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), countCoupons(1))

	var second models.Coupon
	require.NoError(t, svc.DB.Where("user_id = ?", 1).First(&second).Error)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestValidateCoupon(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DB.Create(&models.Coupon{
		Code:               "GIFTBBBBBB",
		DiscountPercentage: 10,
		UserID:             1,
		IsActive:           true,
		ExpirationDate:     time.Now().Add(24 * time.Hour),
	}).Error)

	view, err := svc.ValidateCoupon(ctx, 1, "GIFTBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, "GIFTBBBBBB", view.Code)
	assert.Equal(t, 10, view.DiscountPercentage)

	// Wrong owner, valid code.
	_, err = svc.ValidateCoupon(ctx, 2, "GIFTBBBBBB")
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown code.
	_, err = svc.ValidateCoupon(ctx, 1, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateCoupon_ExpiryFlipsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DB.Create(&models.Coupon{
		Code:               "GIFTCCCCCC",
		DiscountPercentage: 10,
		UserID:             1,
		IsActive:           true,
		ExpirationDate:     time.Now().Add(-time.Hour),
	}).Error)

	_, err := svc.ValidateCoupon(ctx, 1, "GIFTCCCCCC")
	assert.ErrorIs(t, err, ErrCouponExpired)

	var coupon models.Coupon
	require.NoError(t, svc.DB.Where("code = ?", "GIFTCCCCCC").First(&coupon).Error)
	assert.False(t, coupon.IsActive)

	// Expired is reported exactly once; the coupon is inactive now.
	_, err = svc.ValidateCoupon(ctx, 1, "GIFTCCCCCC")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcile_CreatesOrderOnce(t *testing.T) {
	svc, provider := newTestService(t)
	ctx := context.Background()

	items := []Item{{ProductID: 3, Name: "mug", Price: 2500, Quantity: 2}}
	res, err := svc.CreateSession(ctx, 1, items, "")
	require.NoError(t, err)
	provider.markPaid(res.SessionID)

	order, created, err := svc.Reconcile(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(1), order.UserID)
	assert.Equal(t, int64(5000), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, uint(3), order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(2500), order.Items[0].UnitPrice)

	// Replay is safe: the same order comes back, nothing is duplicated.
	replay, created, err := svc.Reconcile(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, replay.ID)

	var n int64
	require.NoError(t, svc.DB.Model(&models.Order{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestReconcile_DeactivatesCoupon(t *testing.T) {
	svc, provider := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DB.Create(&models.Coupon{
		Code:               "GIFTDDDDDD",
		DiscountPercentage: 10,
		UserID:             1,
		IsActive:           true,
		ExpirationDate:     time.Now().Add(24 * time.Hour),
	}).Error)

	items := []Item{{ProductID: 1, Name: "mug", Price: 10000, Quantity: 1}}
	res, err := svc.CreateSession(ctx, 1, items, "GIFTDDDDDD")
	require.NoError(t, err)
	provider.markPaid(res.SessionID)

	_, _, err = svc.Reconcile(ctx, res.SessionID)
	require.NoError(t, err)

	var coupon models.Coupon
	require.NoError(t, svc.DB.Where("code = ?", "GIFTDDDDDD").First(&coupon).Error)
	assert.False(t, coupon.IsActive)

	// Already-inactive coupon on replay is not an error.
	_, _, err = svc.Reconcile(ctx, res.SessionID)
	assert.NoError(t, err)
}

func TestReconcile_UnpaidAndUnknown(t *testing.T) {
	svc, provider := newTestService(t)
	ctx := context.Background()

	items := []Item{{ProductID: 1, Name: "mug", Price: 100, Quantity: 1}}
	res, err := svc.CreateSession(ctx, 1, items, "")
	require.NoError(t, err)

	_, _, err = svc.Reconcile(ctx, res.SessionID)
	assert.ErrorIs(t, err, ErrNotPaid)

	_, _, err = svc.Reconcile(ctx, "cs_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_ = provider
}

func TestSessionMetadataRoundTrips(t *testing.T) {
	svc, provider := newTestService(t)
	ctx := context.Background()

	items := []Item{{ProductID: 5, Name: "lamp", Image: "http://img/lamp.png", Price: 1234, Quantity: 3}}
	res, err := svc.CreateSession(ctx, 9, items, "")
	require.NoError(t, err)

	sess := provider.sessions[res.SessionID]
	assert.Equal(t, "9", sess.Metadata["user_id"])

	var decoded []Item
	require.NoError(t, json.Unmarshal([]byte(sess.Metadata["products"]), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, items[0].ProductID, decoded[0].ProductID)
	assert.Equal(t, items[0].Price, decoded[0].Price)
}
