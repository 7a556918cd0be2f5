package models

import "time"

const (
	ProductAvailable = "AVAILABLE"
	ProductReserved  = "RESERVED"
	ProductSold      = "SOLD"
	ProductRemoved   = "REMOVED"
)

const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderShipped   = "SHIPPED"
	OrderDelivered = "DELIVERED"
	OrderCancelled = "CANCELLED"
)

type User struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username       string `gorm:"unique;not null"          json:"username"`
	PasswordHash   string `gorm:"not null"                 json:"-"`
	Role           string `gorm:"not null;default:user"    json:"role"`
	TotalSales     int    `gorm:"not null;default:0"       json:"total_sales"`
	TotalPurchases int    `gorm:"not null;default:0"       json:"total_purchases"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"        json:"id"`
	SellerID    uint    `gorm:"index;not null"                  json:"seller_id"`
	Title       string  `gorm:"not null"                        json:"title"`
	Brand       string  `json:"brand"`
	Description string  `json:"description"`
	Size        string  `json:"size"`
	Condition   string  `json:"condition"`
	Price       float64 `gorm:"not null"                        json:"price"`
	ImageURL    string  `json:"image_url"`
	Status      string  `gorm:"not null;default:AVAILABLE;index" json:"status"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey"                                   json:"id"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_cart_user_product"   json:"user_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_cart_user_product"   json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"                   json:"quantity"`
}

type Order struct {
	ID             uint       `gorm:"primaryKey"       json:"id"`
	CheckoutID     string     `gorm:"index;not null"   json:"checkout_id"`
	BuyerID        uint       `gorm:"index;not null"   json:"buyer_id"`
	SellerID       uint       `gorm:"index;not null"   json:"seller_id"`
	ProductID      uint       `gorm:"not null"         json:"product_id"`
	Amount         float64    `gorm:"not null"         json:"amount"`
	Status         string     `gorm:"not null;index"   json:"status"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      int64      `gorm:"not null"         json:"created_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `gorm:"not null"            json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}
