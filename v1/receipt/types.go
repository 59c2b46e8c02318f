package receipt

import (
	"fmt"
	"math"
	"time"
)

// Receipt is one retail transaction as served to CS reps. TransactionID is
// globally unique and never changes once written.
type Receipt struct {
	TransactionID string    `json:"transaction_id" gorm:"column:transaction_id;primaryKey"`
	StoreID       string    `json:"store_id" gorm:"column:store_id"`
	StoreName     string    `json:"store_name" gorm:"column:store_name"`
	CustomerID    *string   `json:"customer_id,omitempty" gorm:"column:customer_id"`
	CustomerName  *string   `json:"customer_name,omitempty" gorm:"column:customer_name"`
	TransactionTS time.Time `json:"transaction_ts" gorm:"column:transaction_ts"`
	SubtotalCents *int64    `json:"subtotal_cents,omitempty" gorm:"column:subtotal_cents"`
	TaxCents      *int64    `json:"tax_cents,omitempty" gorm:"column:tax_cents"`
	TotalCents    int64     `json:"total_cents" gorm:"column:total_cents"`
	TenderType    string    `json:"tender_type" gorm:"column:tender_type"`
	CardLast4     *string   `json:"card_last4,omitempty" gorm:"column:card_last4"`
	ItemCount     int       `json:"item_count" gorm:"column:item_count"`
	ItemSummary   string    `json:"item_summary" gorm:"column:item_summary"`
	CategoryTags  []string  `json:"category_tags" gorm:"column:category_tags;serializer:json"`

	LineItems []LineItem `json:"line_items" gorm:"-"`
}

func (Receipt) TableName() string { return "receipt_lookup" }

// LineItem is one line of a receipt; LineNumber is unique per receipt.
type LineItem struct {
	TransactionID  string  `json:"-" gorm:"column:transaction_id;primaryKey"`
	LineNumber     int     `json:"line_number" gorm:"column:line_number;primaryKey"`
	SKU            string  `json:"sku" gorm:"column:sku"`
	ProductName    string  `json:"product_name" gorm:"column:product_name"`
	Brand          string  `json:"brand" gorm:"column:brand"`
	Category       string  `json:"category" gorm:"column:category_l1"`
	Quantity       float64 `json:"quantity" gorm:"column:quantity"`
	UnitPriceCents int64   `json:"unit_price_cents" gorm:"column:unit_price_cents"`
	DiscountCents  int64   `json:"discount_cents" gorm:"column:discount_cents"`
	LineTotalCents int64   `json:"line_total_cents" gorm:"column:line_total_cents"`
}

func (LineItem) TableName() string { return "receipt_line_items" }

// ExpectedTotal is round(quantity * unit price) minus the discount.
func (li LineItem) ExpectedTotal() int64 {
	return int64(math.Round(li.Quantity*float64(li.UnitPriceCents))) - li.DiscountCents
}

// Validate checks the line total arithmetic.
func (li LineItem) Validate() error {
	if li.Quantity < 0 || li.UnitPriceCents < 0 || li.DiscountCents < 0 {
		return fmt.Errorf("%w: line %d has negative quantity, price or discount", ErrInvalidReceipt, li.LineNumber)
	}
	if got, want := li.LineTotalCents, li.ExpectedTotal(); got != want {
		return fmt.Errorf("%w: line %d total %d, expected %d", ErrInvalidReceipt, li.LineNumber, got, want)
	}
	return nil
}

// Validate checks the receipt and its line items before a write.
func (r *Receipt) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidReceipt)
	}
	if r.StoreID == "" {
		return fmt.Errorf("%w: store id is required", ErrInvalidReceipt)
	}
	if r.TotalCents < 0 {
		return fmt.Errorf("%w: total must not be negative", ErrInvalidReceipt)
	}
	if r.CardLast4 != nil && !isLast4(*r.CardLast4) {
		return fmt.Errorf("%w: card last4 must be exactly 4 digits", ErrInvalidReceipt)
	}
	seen := make(map[int]struct{}, len(r.LineItems))
	for _, li := range r.LineItems {
		if _, dup := seen[li.LineNumber]; dup {
			return fmt.Errorf("%w: duplicate line number %d", ErrInvalidReceipt, li.LineNumber)
		}
		seen[li.LineNumber] = struct{}{}
		if err := li.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func isLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Summary is the receipt projection returned by searches.
type Summary struct {
	TransactionID string    `json:"transaction_id"`
	StoreID       string    `json:"store_id"`
	StoreName     string    `json:"store_name"`
	CustomerID    *string   `json:"customer_id,omitempty"`
	CustomerName  *string   `json:"customer_name,omitempty"`
	TransactionTS time.Time `json:"transaction_ts"`
	TotalCents    int64     `json:"total_cents"`
	TenderType    string    `json:"tender_type"`
	CardLast4     *string   `json:"card_last4,omitempty"`
	ItemCount     int       `json:"item_count"`
	ItemSummary   string    `json:"item_summary"`

	// Set by semantic search only.
	MatchedProduct string  `json:"matched_product,omitempty"`
	Similarity     float64 `json:"similarity,omitempty"`
}

// Summarize projects a full receipt to a search summary.
func (r *Receipt) Summarize() Summary {
	return Summary{
		TransactionID: r.TransactionID,
		StoreID:       r.StoreID,
		StoreName:     r.StoreName,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		TransactionTS: r.TransactionTS,
		TotalCents:    r.TotalCents,
		TenderType:    r.TenderType,
		CardLast4:     r.CardLast4,
		ItemCount:     r.ItemCount,
		ItemSummary:   r.ItemSummary,
	}
}

// ProductMatch is a product whose embedding is close to a query vector.
type ProductMatch struct {
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Similarity  float64 `json:"similarity"`
}

// Page bounds a result set.
type Page struct {
	Limit  int
	Offset int
}
