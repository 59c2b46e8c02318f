package httpapi

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
)

const dateLayout = "2006-01-02"

// SearchRequest is the body of POST /v1/search. Amounts are dollars and
// dates are YYYY-MM-DD; empty strings count as absent.
type SearchRequest struct {
	TransactionID string `json:"transaction_id"`
	CustomerID    string `json:"customer_id"`
	StoreID       string `json:"store_id"`
	StoreName     string `json:"store_name"`

	Date     string `json:"date"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`

	Amount    *float64 `json:"amount"`
	AmountMin *float64 `json:"amount_min"`
	AmountMax *float64 `json:"amount_max"`

	CardLast4 string `json:"card_last4"`

	// Query is free text: a product description or an analytical question.
	Query string `json:"query"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Criteria converts the request. Field errors are collected into a
// *search.ValidationError.
func (r SearchRequest) Criteria() (search.Criteria, error) {
	c := search.Criteria{
		TransactionID: r.TransactionID,
		CustomerID:    r.CustomerID,
		StoreID:       r.StoreID,
		StoreName:     r.StoreName,
		CardLast4:     r.CardLast4,
		Description:   r.Query,
		Limit:         r.Limit,
		Offset:        r.Offset,
	}

	bad := map[string]string{}
	parse := func(field, v string) *time.Time {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			bad[field] = "must be a date in YYYY-MM-DD format"
			return nil
		}
		return &t
	}
	c.Date = parse("date", r.Date)
	c.DateFrom = parse("date_from", r.DateFrom)
	c.DateTo = parse("date_to", r.DateTo)

	c.AmountCents = dollarsToCents(r.Amount)
	c.AmountMinCents = dollarsToCents(r.AmountMin)
	c.AmountMaxCents = dollarsToCents(r.AmountMax)

	if len(bad) > 0 {
		return c, &search.ValidationError{Fields: bad}
	}
	return c, nil
}

// dollarsToCents rounds to the nearest cent. Values beyond the search cap
// are clamped just past it so validation rejects them without overflow.
func dollarsToCents(d *float64) *int64 {
	if d == nil {
		return nil
	}
	cents := math.Round(*d * 100)
	if cents > float64(search.MaxAmountCents) {
		cents = float64(search.MaxAmountCents + 1)
	}
	if cents < -1 {
		cents = -1
	}
	v := int64(cents)
	return &v
}

// SearchResponse is the data of a successful search.
type SearchResponse struct {
	StrategyUsed search.Strategy   `json:"strategy_used"`
	Count        int               `json:"count"`
	Receipts     []receipt.Summary `json:"receipts"`
	Answer       string            `json:"answer,omitempty"`
	Rows         []map[string]any  `json:"rows,omitempty"`

	// Degraded is set when part of the search was unavailable; Message
	// tells the rep what to try instead.
	Degraded bool   `json:"degraded"`
	Message  string `json:"message,omitempty"`
}

func newSearchResponse(out search.Outcome) SearchResponse {
	receipts := out.Result.Receipts
	if receipts == nil {
		receipts = []receipt.Summary{}
	}
	return SearchResponse{
		StrategyUsed: out.Result.Strategy,
		Count:        len(receipts),
		Receipts:     receipts,
		Answer:       out.Result.Answer,
		Rows:         out.Result.Rows,
		Degraded:     out.Degraded,
		Message:      out.Reason,
	}
}

// CustomerReceiptsResponse is the data of GET /v1/receipts/customer/{id}.
type CustomerReceiptsResponse struct {
	CustomerID string            `json:"customer_id"`
	Receipts   []receipt.Summary `json:"receipts"`
	Count      int               `json:"count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// ReceiptWriteRequest is the body of POST /v1/receipts, sent by the POS.
// Money is in cents.
type ReceiptWriteRequest struct {
	TransactionID string    `json:"transaction_id" validate:"required,max=100"`
	StoreID       string    `json:"store_id" validate:"required,max=50"`
	StoreName     string    `json:"store_name" validate:"max=200"`
	CustomerID    *string   `json:"customer_id" validate:"omitempty,max=100"`
	CustomerName  *string   `json:"customer_name" validate:"omitempty,max=200"`
	TransactionTS time.Time `json:"transaction_ts" validate:"required"`
	SubtotalCents int64     `json:"subtotal_cents" validate:"gte=0,lte=1000000000"`
	TaxCents      int64     `json:"tax_cents" validate:"gte=0,lte=100000000"`
	TotalCents    int64     `json:"total_cents" validate:"gte=0,lte=1000000000"`
	TenderType    string    `json:"tender_type" validate:"omitempty,oneof=CREDIT DEBIT CASH EBT"`
	CardLast4     *string   `json:"card_last4" validate:"omitempty,len=4,number"`
	ItemSummary   string    `json:"item_summary" validate:"max=1000"`
	CategoryTags  []string  `json:"category_tags" validate:"max=50,dive,max=100"`

	Items []LineItemRequest `json:"items" validate:"max=500,dive"`
}

type LineItemRequest struct {
	LineNumber     int     `json:"line_number" validate:"gte=1"`
	SKU            string  `json:"sku" validate:"required,max=100"`
	ProductName    string  `json:"product_name" validate:"required,max=300"`
	Brand          string  `json:"brand" validate:"max=200"`
	Category       string  `json:"category" validate:"max=200"`
	Quantity       float64 `json:"quantity" validate:"gt=0"`
	UnitPriceCents int64   `json:"unit_price_cents" validate:"gte=0"`
	DiscountCents  int64   `json:"discount_cents" validate:"gte=0"`
	LineTotalCents int64   `json:"line_total_cents"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Receipt validates the request and converts it. Line-item arithmetic is
// checked by receipt.Receipt.Validate on save.
func (r ReceiptWriteRequest) Receipt() (*receipt.Receipt, error) {
	if err := validate.Struct(r); err != nil {
		return nil, validationDetails(err)
	}

	rec := &receipt.Receipt{
		TransactionID: strings.TrimSpace(r.TransactionID),
		StoreID:       strings.TrimSpace(r.StoreID),
		StoreName:     r.StoreName,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		TransactionTS: r.TransactionTS,
		SubtotalCents: &r.SubtotalCents,
		TaxCents:      &r.TaxCents,
		TotalCents:    r.TotalCents,
		TenderType:    r.TenderType,
		CardLast4:     r.CardLast4,
		ItemCount:     len(r.Items),
		ItemSummary:   r.ItemSummary,
		CategoryTags:  r.CategoryTags,
	}
	for _, it := range r.Items {
		rec.LineItems = append(rec.LineItems, receipt.LineItem{
			TransactionID:  rec.TransactionID,
			LineNumber:     it.LineNumber,
			SKU:            it.SKU,
			ProductName:    it.ProductName,
			Brand:          it.Brand,
			Category:       it.Category,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			DiscountCents:  it.DiscountCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return rec, nil
}

func validationDetails(err error) *search.ValidationError {
	verrs, isValidation := err.(validator.ValidationErrors)
	if !isValidation {
		return &search.ValidationError{Fields: map[string]string{"body": err.Error()}}
	}
	out := &search.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "ReceiptWriteRequest.")
		if fe.Param() != "" {
			out.Fields[field] = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		} else {
			out.Fields[field] = "failed " + fe.Tag()
		}
	}
	return out
}
