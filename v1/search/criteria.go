package search

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Criteria is a sparse search request. Amounts are in cents. Dates are
// calendar days; only their year, month and day are used.
type Criteria struct {
	TransactionID string `json:"transaction_id,omitempty" validate:"omitempty,max=64"`
	CustomerID    string `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	StoreID       string `json:"store_id,omitempty" validate:"omitempty,max=64"`
	StoreName     string `json:"store_name,omitempty" validate:"omitempty,max=200"`

	Date     *time.Time `json:"date,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	AmountCents    *int64 `json:"amount_cents,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
	AmountMinCents *int64 `json:"amount_min_cents,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
	AmountMaxCents *int64 `json:"amount_max_cents,omitempty" validate:"omitempty,gte=0,lte=1000000000"`

	CardLast4   string `json:"card_last4,omitempty" validate:"omitempty,len=4,number"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`

	Limit  int `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	Offset int `json:"offset,omitempty" validate:"gte=0"`
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
	v.RegisterStructValidation(validateRanges, Criteria{})
	return v
}

func validateRanges(sl validator.StructLevel) {
	c := sl.Current().Interface().(Criteria)

	if c.AmountMinCents != nil && c.AmountMaxCents != nil && *c.AmountMinCents > *c.AmountMaxCents {
		sl.ReportError(c.AmountMinCents, "amount_min_cents", "AmountMinCents", "ltefield", "amount_max_cents")
	}
	if c.AmountCents != nil && (c.AmountMinCents != nil || c.AmountMaxCents != nil) {
		sl.ReportError(c.AmountCents, "amount_cents", "AmountCents", "excluded_with", "amount range")
	}
	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		sl.ReportError(c.DateFrom, "date_from", "DateFrom", "ltefield", "date_to")
	}
	if c.Date != nil && (c.DateFrom != nil || c.DateTo != nil) {
		sl.ReportError(c.Date, "date", "Date", "excluded_with", "date range")
	}
	if (c.DateFrom != nil || c.DateTo != nil) && !c.hasSpecific() {
		sl.ReportError(c.DateFrom, "date_range", "DateFrom", "required_with_specific", "")
	}
}

// hasSpecific reports whether a field other than a date narrows the
// search. A date range needs one.
func (c *Criteria) hasSpecific() bool {
	return c.TransactionID != "" || c.Description != "" ||
		c.CustomerID != "" || c.StoreID != "" || c.StoreName != "" || c.CardLast4 != "" ||
		c.AmountCents != nil || c.AmountMinCents != nil || c.AmountMaxCents != nil
}

// Normalize trims text fields. Empty strings count as absent.
func (c *Criteria) Normalize() {
	c.TransactionID = strings.TrimSpace(c.TransactionID)
	c.CustomerID = strings.TrimSpace(c.CustomerID)
	c.StoreID = strings.TrimSpace(c.StoreID)
	c.StoreName = strings.TrimSpace(c.StoreName)
	c.CardLast4 = strings.TrimSpace(c.CardLast4)
	c.Description = strings.TrimSpace(c.Description)
}

// HasStructured reports whether any field other than the transaction id
// and the free text is set.
func (c *Criteria) HasStructured() bool {
	return c.CustomerID != "" || c.StoreID != "" || c.StoreName != "" ||
		c.Date != nil || c.DateFrom != nil || c.DateTo != nil ||
		c.AmountCents != nil || c.AmountMinCents != nil || c.AmountMaxCents != nil ||
		c.CardLast4 != ""
}

// IsEmpty reports whether no searchable field is set. Paging alone does
// not count.
func (c *Criteria) IsEmpty() bool {
	return c.TransactionID == "" && c.Description == "" && !c.HasStructured()
}

// Validate normalizes c and checks it. Failures are *ValidationError.
func (c *Criteria) Validate() error {
	c.Normalize()
	if c.IsEmpty() {
		return newValidationError("criteria", "at least one search field is required")
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"criteria": err.Error()}}
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		if strings.HasPrefix(fe.Field(), "amount") {
			return "must be at most $10,000,000"
		}
		return "must be at most " + fe.Param()
	case "max":
		return "is too long (max " + fe.Param() + ")"
	case "len", "number":
		return "must be exactly 4 digits"
	case "ltefield":
		return "must not be after " + fe.Param()
	case "excluded_with":
		return "cannot be combined with a " + fe.Param()
	case "required_with_specific":
		return "must be combined with customer, store, amount, card, transaction id or description"
	}
	return "is invalid"
}

// page applies the default and cap to Limit.
func (c *Criteria) page(defaultLimit int) (limit, offset int) {
	limit = c.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, c.Offset
}
