package receipt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineItemInvariant(t *testing.T) {
	li := LineItem{LineNumber: 1, Quantity: 1.5, UnitPriceCents: 399, DiscountCents: 50, LineTotalCents: 549}
	assert.NoError(t, li.Validate()) // round(598.5) = 599, minus 50

	li.LineTotalCents = 548
	assert.True(t, errors.Is(li.Validate(), ErrInvalidReceipt))
}

func TestReceiptValidate(t *testing.T) {
	card := "42x2"
	cases := []struct {
		name string
		r    Receipt
		ok   bool
	}{
		{"valid", Receipt{TransactionID: "T1", StoreID: "S1", TotalCents: 100}, true},
		{"missing id", Receipt{StoreID: "S1"}, false},
		{"missing store", Receipt{TransactionID: "T1"}, false},
		{"negative total", Receipt{TransactionID: "T1", StoreID: "S1", TotalCents: -1}, false},
		{"bad card", Receipt{TransactionID: "T1", StoreID: "S1", CardLast4: &card}, false},
		{"duplicate line", Receipt{TransactionID: "T1", StoreID: "S1", LineItems: []LineItem{
			{LineNumber: 1, Quantity: 1, UnitPriceCents: 100, LineTotalCents: 100},
			{LineNumber: 1, Quantity: 1, UnitPriceCents: 100, LineTotalCents: 100},
		}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidReceipt)
			}
		})
	}
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", VectorLiteral([]float32{0.5, -1, 0.25}))
}
