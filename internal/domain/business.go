package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Business categories accepted by the pipeline.
const (
	CategoryRestaurant = "restaurant"
	CategoryRetail     = "retail"
	CategoryService    = "service"
	CategoryOther      = "other"
)

// Categories lists every accepted category in display order.
var Categories = []string{CategoryRestaurant, CategoryRetail, CategoryService, CategoryOther}

// BusinessRecord is a validated, sanitized business submission.
type BusinessRecord struct {
	ID           string            `json:"id"`
	BusinessName string            `json:"businessName"`
	OwnerName    string            `json:"ownerName,omitempty"`
	Description  string            `json:"description,omitempty"`
	Category     string            `json:"category"`
	Products     []ProductCategory `json:"products"`
	Phone        string            `json:"phone"`
	Email        string            `json:"email,omitempty"`
	Address      string            `json:"address"`
	WhatsApp     string            `json:"whatsapp,omitempty"`
	Instagram    string            `json:"instagram,omitempty"`
	LogoURL      string            `json:"logoUrl,omitempty"`
	ThemeName    string            `json:"theme,omitempty"`
	CustomPrompt string            `json:"customPrompt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ProductCategory groups products under a heading.
type ProductCategory struct {
	CategoryName string        `json:"categoryName"`
	Items        []ProductItem `json:"items"`
}

// ProductItem is a single product or menu entry.
type ProductItem struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

// IsValidCategory reports whether category is one of the accepted values.
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// BusinessDocument is the merged document persisted under business:<id>.
type BusinessDocument struct {
	Business   BusinessRecord   `json:"business"`
	Deployment DeploymentRecord `json:"deployment"`
}
