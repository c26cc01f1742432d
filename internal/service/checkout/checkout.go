package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantcart/storefront/internal/logging"
	"github.com/verdantcart/storefront/internal/models"
	"github.com/verdantcart/storefront/internal/payments"
)

var (
	ErrValidation    = errors.New("validation")         // 400
	ErrNotFound      = errors.New("not found")          // 404
	ErrCouponExpired = errors.New("coupon has expired") // 400
	ErrNotPaid       = errors.New("session not paid")   // 400
)

const (
	// Minor-unit total above which a welcome coupon is issued. Strictly
	// greater than: a 20000 checkout does not qualify, 20001 does.
	WelcomeCouponThreshold = 20000

	welcomeCouponPercent = 10
	welcomeCouponTTL     = 30 * 24 * time.Hour
)

// Item is one checkout line. Unit prices come from the request body and are
// deliberately not re-priced against the catalog; the observed system
// trusts the client here (see DESIGN.md).
type Item struct {
	ProductID uint   `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type SessionResult struct {
	SessionID   string `json:"id"`
	TotalAmount int64  `json:"total_amount"`
}

type CouponView struct {
	Code               string `json:"code"`
	DiscountPercentage int    `json:"discount_percentage"`
}

// Service computes discounted totals, issues one-time welcome coupons and
// reconciles provider confirmations into orders exactly once.
type Service struct {
	DB        *gorm.DB
	Provider  payments.Provider
	ClientURL string
}

// Totals sums price*quantity and applies the percentage discount, rounded
// half up, in minor units.
func Totals(items []Item, discountPercentage int) (subtotal, total int64) {
	for _, it := range items {
		subtotal += it.Price * int64(it.Quantity)
	}
	total = subtotal - Discount(subtotal, discountPercentage)
	return subtotal, total
}

func Discount(subtotal int64, percentage int) int64 {
	if percentage <= 0 {
		return 0
	}
	return (subtotal*int64(percentage) + 50) / 100
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items required", ErrValidation)
	}
	for i := range items {
		if items[i].ProductID == 0 {
			return fmt.Errorf("%w: product id required", ErrValidation)
		}
		if items[i].Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be > 0", ErrValidation)
		}
		if items[i].Price < 0 {
			return fmt.Errorf("%w: price must be >= 0", ErrValidation)
		}
	}
	return nil
}

// CreateSession opens a provider checkout session. An invalid or foreign
// coupon code is silently skipped, not an error. Totals above the welcome
// threshold replace the user's coupon with a fresh 10% one.
func (s *Service) CreateSession(ctx context.Context, userID uint, items []Item, couponCode string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "checkout.create_session", "user_id", userID)

	if err := validateItems(items); err != nil {
		return nil, err
	}

	discount := 0
	if couponCode != "" {
		var coupon models.Coupon
		err := s.DB.WithContext(ctx).
			Where("code = ? AND user_id = ? AND is_active = ?", couponCode, userID, true).
			First(&coupon).Error
		switch {
		case err == nil:
			discount = coupon.DiscountPercentage
		case errors.Is(err, gorm.ErrRecordNotFound):
			// skipped silently, checkout proceeds at full price
		default:
			return nil, fmt.Errorf("coupon lookup: %w", err)
		}
	}

	_, total := Totals(items, discount)

	lineItems := make([]payments.LineItem, 0, len(items))
	for _, it := range items {
		lineItems = append(lineItems, payments.LineItem{
			Name:      it.Name,
			ImageURL:  it.Image,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
		})
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	sess, err := s.Provider.CreateSession(ctx, payments.SessionRequest{
		LineItems:  lineItems,
		PercentOff: discount,
		SuccessURL: s.ClientURL + "/purchase-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.ClientURL + "/purchase-cancel",
		Metadata: map[string]string{
			"user_id":     strconv.FormatUint(uint64(userID), 10),
			"coupon_code": couponCode,
			"products":    string(itemsJSON),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if total > WelcomeCouponThreshold {
		if _, err := s.IssueWelcomeCoupon(ctx, userID); err != nil {
			l.Error("welcome_coupon_failed", "error", err)
		}
	}

	return &SessionResult{SessionID: sess.ID, TotalAmount: total}, nil
}

// IssueWelcomeCoupon replaces whatever coupon the user holds with a fresh
// active 10% one valid for 30 days.
func (s *Service) IssueWelcomeCoupon(ctx context.Context, userID uint) (*models.Coupon, error) {
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Coupon{}).Error; err != nil {
		return nil, fmt.Errorf("delete prior coupon: %w", err)
	}

	coupon := models.Coupon{
		Code:               "GIFT" + couponSuffix(),
		DiscountPercentage: welcomeCouponPercent,
		UserID:             userID,
		IsActive:           true,
		ExpirationDate:     time.Now().Add(welcomeCouponTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&coupon).Error; err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return &coupon, nil
}

func couponSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// Reconcile turns a paid provider session into a persisted order, exactly
// once per session id. Replays return the original order with created=false.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	sess, err := s.Provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, false, fmt.Errorf("retrieve session: %w", err)
	}
	if !sess.Paid {
		return nil, false, ErrNotPaid
	}

	userID, err := strconv.ParseUint(sess.Metadata["user_id"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%w: session has no user", ErrValidation)
	}

	// Coupon deactivation is an idempotent update, safe on replay.
	if code := sess.Metadata["coupon_code"]; code != "" {
		if err := s.DB.WithContext(ctx).Model(&models.Coupon{}).
			Where("code = ? AND user_id = ?", code, uint(userID)).
			Update("is_active", false).Error; err != nil {
			return nil, false, fmt.Errorf("deactivate coupon: %w", err)
		}
	}

	if existing, err := s.orderBySession(ctx, sessionID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var items []Item
	if err := json.Unmarshal([]byte(sess.Metadata["products"]), &items); err != nil {
		return nil, false, fmt.Errorf("%w: malformed session items", ErrValidation)
	}

	order := models.Order{
		UserID:          uint(userID),
		TotalAmount:     sess.AmountTotal,
		StripeSessionID: sessionID,
	}
	for _, it := range items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}

	if err := s.DB.WithContext(ctx).Create(&order).Error; err != nil {
		// A concurrent reconcile may have won the unique index race.
		if existing, lookupErr := s.orderBySession(ctx, sessionID); lookupErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create order: %w", err)
	}
	return &order, true, nil
}

func (s *Service) orderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("stripe_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ValidateCoupon resolves an active coupon owned by the user. A coupon past
// its expiration is flipped inactive as a side effect and reported expired;
// later validations of the same code report not found.
func (s *Service) ValidateCoupon(ctx context.Context, userID uint, code string) (*CouponView, error) {
	var coupon models.Coupon
	err := s.DB.WithContext(ctx).
		Where("code = ? AND user_id = ? AND is_active = ?", code, userID, true).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: coupon", ErrNotFound)
		}
		return nil, fmt.Errorf("coupon lookup: %w", err)
	}

	if coupon.ExpirationDate.Before(time.Now()) {
		coupon.IsActive = false
		if err := s.DB.WithContext(ctx).Save(&coupon).Error; err != nil {
			return nil, fmt.Errorf("expire coupon: %w", err)
		}
		return nil, ErrCouponExpired
	}

	return &CouponView{
		Code:               coupon.Code,
		DiscountPercentage: coupon.DiscountPercentage,
	}, nil
}

// ActiveCoupon returns the user's current active coupon, or nil.
func (s *Service) ActiveCoupon(ctx context.Context, userID uint) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}
