package catalog

import "time"

// Product is a catalog row keyed by its unique internal code.
type Product struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	OriginalCode   string    `json:"original_code"`
	Description    string    `json:"description"`
	Application    string    `json:"application"`
	Stock          int64     `json:"stock"`
	RetailPrice    float64   `json:"retail_price"`
	WholesalePrice *float64  `json:"wholesale_price,omitempty"`
	BrandID        *int64    `json:"brand_id,omitempty"`
	FamilyID       *int64    `json:"family_id,omitempty"`
	Category       string    `json:"category"`
	IsOffer        bool      `json:"is_offer"`
	IsNew          bool      `json:"is_new"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Brand is a product brand referenced by name.
type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Family groups products of the same kind (filters, pads, belts...).
type Family struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
