package models

import (
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"not null"                 json:"name"`
	Email        string    `gorm:"unique;not null"          json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:customer" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prices are kept in minor units (cents) everywhere.
type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Description string    `gorm:"not null"                 json:"description"`
	Price       int64     `gorm:"not null"                 json:"price"`
	Image       string    `json:"image"`
	Category    string    `gorm:"index"                    json:"category"`
	IsFeatured  bool      `gorm:"default:false"            json:"is_featured"`
	CreatedAt   time.Time `json:"created_at"`
}

type Coupon struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code               string    `gorm:"index;not null"           json:"code"`
	DiscountPercentage int       `gorm:"not null"                 json:"discount_percentage"`
	UserID             uint      `gorm:"uniqueIndex;not null"     json:"user_id"`
	IsActive           bool      `gorm:"default:true"             json:"is_active"`
	ExpirationDate     time.Time `gorm:"not null"                 json:"expiration_date"`
	CreatedAt          time.Time `json:"created_at"`
}

type Order struct {
	ID              uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uint        `gorm:"index;not null"           json:"user_id"`
	Items           []OrderItem `gorm:"foreignKey:OrderID"       json:"items"`
	TotalAmount     int64       `gorm:"not null"                 json:"total_amount"`
	StripeSessionID string      `gorm:"uniqueIndex;not null"     json:"stripe_session_id"`
	CreatedAt       time.Time   `json:"created_at"`
}

type OrderItem struct {
	ID        uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint  `gorm:"index;not null"           json:"order_id"`
	ProductID uint  `gorm:"not null"                 json:"product_id"`
	Quantity  int   `gorm:"not null;check:quantity>0" json:"quantity"`
	UnitPrice int64 `gorm:"not null"                 json:"unit_price"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey;autoIncrement"    json:"id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  int  `gorm:"default:1;check:quantity>0"  json:"quantity"`
}
