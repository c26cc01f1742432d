package client

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/verdantcart/storefront/internal/service/checkout"
)

// Notification is the stores' side channel for user-facing outcomes.
// Failed actions never return errors; they queue an error notification
// and leave whatever state the optimistic update already produced.
type Notification struct {
	Level   string `json:"level"` // "success" or "error"
	Message string `json:"message"`
}

type User struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Product struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	IsFeatured  bool   `json:"is_featured"`
}

type CartLine struct {
	Product
	Quantity int `json:"quantity"`
}

type Coupon struct {
	Code               string `json:"code"`
	DiscountPercentage int    `json:"discount_percentage"`
}

type notifier struct {
	notes []Notification
}

func (n *notifier) success(msg string) {
	n.notes = append(n.notes, Notification{Level: "success", Message: msg})
}

func (n *notifier) failure(err error) {
	n.notes = append(n.notes, Notification{Level: "error", Message: err.Error()})
}

func (n *notifier) drain() []Notification {
	out := n.notes
	n.notes = nil
	return out
}

// UserStore owns the authenticated-user slice of client state.
type UserStore struct {
	mu  sync.Mutex
	api *Client

	user *User
	notifier
}

func NewUserStore(api *Client) *UserStore {
	s := &UserStore{api: api}
	api.OnSessionExpired(s.forceLogout)
	return s
}

func (s *UserStore) Current() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *UserStore) Drain() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drain()
}

func (s *UserStore) Signup(ctx context.Context, name, email, password string) {
	var user User
	err := s.api.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": name, "email": email, "password": password,
	}, &user)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.user = &user
	s.success("account created")
}

func (s *UserStore) Login(ctx context.Context, email, password string) {
	var user User
	err := s.api.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &user)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.user = &user
	s.success("logged in")
}

func (s *UserStore) Logout(ctx context.Context) {
	err := s.api.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	if err != nil {
		s.failure(err)
		return
	}
	s.success("logged out")
}

func (s *UserStore) LoadProfile(ctx context.Context) {
	var user User
	err := s.api.do(ctx, http.MethodGet, "/api/auth/profile", nil, &user)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.user = &user
}

func (s *UserStore) forceLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.notes = append(s.notes, Notification{Level: "error", Message: "session expired, please log in again"})
}

// CartStore keeps the cart lines and the applied coupon, with locally
// derived subtotal/total in minor units.
type CartStore struct {
	mu  sync.Mutex
	api *Client

	lines    []CartLine
	coupon   *Coupon
	subtotal int64
	total    int64
	notifier
}

func NewCartStore(api *Client) *CartStore {
	return &CartStore{api: api}
}

func (s *CartStore) Lines() []CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *CartStore) Totals() (subtotal, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotal, s.total
}

func (s *CartStore) Coupon() *Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupon
}

func (s *CartStore) Drain() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drain()
}

// recompute mirrors the server's rounding: discount is percentage of the
// subtotal rounded half up. Callers must hold mu.
func (s *CartStore) recompute() {
	s.subtotal = 0
	for _, line := range s.lines {
		s.subtotal += line.Price * int64(line.Quantity)
	}
	pct := 0
	if s.coupon != nil {
		pct = s.coupon.DiscountPercentage
	}
	s.total = s.subtotal - checkout.Discount(s.subtotal, pct)
}

func (s *CartStore) Load(ctx context.Context) {
	var lines []CartLine
	err := s.api.do(ctx, http.MethodGet, "/api/cart", nil, &lines)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.lines = lines
	s.recompute()
}

// Add applies the change locally first; a failed request leaves the
// optimistic state in place and only queues a notification.
func (s *CartStore) Add(ctx context.Context, product Product) {
	s.mu.Lock()
	merged := false
	for i := range s.lines {
		if s.lines[i].ID == product.ID {
			s.lines[i].Quantity++
			merged = true
			break
		}
	}
	if !merged {
		s.lines = append(s.lines, CartLine{Product: product, Quantity: 1})
	}
	s.recompute()
	s.mu.Unlock()

	err := s.api.do(ctx, http.MethodPost, "/api/cart", map[string]uint{"product_id": product.ID}, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.success("added to cart")
}

func (s *CartStore) UpdateQuantity(ctx context.Context, productID uint, quantity int) {
	s.mu.Lock()
	for i := range s.lines {
		if s.lines[i].ID != productID {
			continue
		}
		if quantity == 0 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
		} else {
			s.lines[i].Quantity = quantity
		}
		break
	}
	s.recompute()
	s.mu.Unlock()

	err := s.api.do(ctx, http.MethodPut, "/api/cart/"+strconv.FormatUint(uint64(productID), 10),
		map[string]int{"quantity": quantity}, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
	}
}

func (s *CartStore) Remove(ctx context.Context, productID uint) {
	s.UpdateQuantity(ctx, productID, 0)
}

func (s *CartStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.coupon = nil
	s.recompute()
	s.mu.Unlock()

	if err := s.api.do(ctx, http.MethodDelete, "/api/cart", map[string]uint{}, nil); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.failure(err)
	}
}

func (s *CartStore) ApplyCoupon(ctx context.Context, code string) {
	var res struct {
		Code               string `json:"code"`
		DiscountPercentage int    `json:"discountPercentage"`
	}
	err := s.api.do(ctx, http.MethodPost, "/api/coupons/validate", map[string]string{"code": code}, &res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.coupon = &Coupon{Code: res.Code, DiscountPercentage: res.DiscountPercentage}
	s.recompute()
	s.success("coupon applied")
}

func (s *CartStore) LoadCoupon(ctx context.Context) {
	var coupon *Coupon
	err := s.api.do(ctx, http.MethodGet, "/api/coupons", nil, &coupon)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.coupon = coupon
	s.recompute()
}

func (s *CartStore) RemoveCoupon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupon = nil
	s.recompute()
}

// ProductStore mirrors the catalog slices the pages render from.
type ProductStore struct {
	mu  sync.Mutex
	api *Client

	products []Product
	featured []Product
	notifier
}

func NewProductStore(api *Client) *ProductStore {
	return &ProductStore{api: api}
}

func (s *ProductStore) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *ProductStore) Featured() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, len(s.featured))
	copy(out, s.featured)
	return out
}

func (s *ProductStore) Drain() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drain()
}

func (s *ProductStore) LoadFeatured(ctx context.Context) {
	var featured []Product
	err := s.api.do(ctx, http.MethodGet, "/api/products/featured", nil, &featured)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.featured = featured
}

func (s *ProductStore) LoadCategory(ctx context.Context, category string) {
	var res struct {
		Products []Product `json:"products"`
	}
	err := s.api.do(ctx, http.MethodGet, "/api/products/category/"+category, nil, &res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.products = res.Products
}

func (s *ProductStore) LoadAll(ctx context.Context) {
	var res struct {
		Products []Product `json:"products"`
	}
	err := s.api.do(ctx, http.MethodGet, "/api/products", nil, &res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.products = res.Products
}

func (s *ProductStore) Create(ctx context.Context, product Product) {
	var created Product
	err := s.api.do(ctx, http.MethodPost, "/api/products", map[string]any{
		"name":        product.Name,
		"description": product.Description,
		"price":       product.Price,
		"image":       product.Image,
		"category":    product.Category,
	}, &created)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.products = append(s.products, created)
	s.success("product created")
}

func (s *ProductStore) ToggleFeatured(ctx context.Context, id uint) {
	// Optimistic flip, kept even if the request fails.
	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].IsFeatured = !s.products[i].IsFeatured
			break
		}
	}
	s.mu.Unlock()

	var updated Product
	err := s.api.do(ctx, http.MethodPatch, "/api/products/"+strconv.FormatUint(uint64(id), 10), nil, &updated)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
	}
}

func (s *ProductStore) Delete(ctx context.Context, id uint) {
	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	err := s.api.do(ctx, http.MethodDelete, "/api/products/"+strconv.FormatUint(uint64(id), 10), nil, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failure(err)
		return
	}
	s.success("product deleted")
}
