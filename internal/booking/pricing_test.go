package booking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malathy2002/hall-booking-website/internal/hall"
)

func TestPriceFor(t *testing.T) {
	h := &hall.Hall{BasePrice: 20000, PerGuestCharge: 50}

	tests := []struct {
		name     string
		guests   int
		discount int64
		want     Quote
		wantErr  error
	}{
		{
			name:   "base plus per-guest surcharge",
			guests: 100,
			want:   Quote{BasePrice: 20000, AdditionalCharges: 5000, Total: 25000},
		},
		{
			name:     "discount is subtracted",
			guests:   10,
			discount: 500,
			want:     Quote{BasePrice: 20000, AdditionalCharges: 500, Discount: 500, Total: 20000},
		},
		{
			name:     "discount may bring total to zero",
			guests:   1,
			discount: 20050,
			want:     Quote{BasePrice: 20000, AdditionalCharges: 50, Discount: 20050, Total: 0},
		},
		{name: "discount above price", guests: 1, discount: 20051, wantErr: ErrInvalidAmount},
		{name: "negative discount", guests: 1, discount: -1, wantErr: ErrInvalidAmount},
		{name: "no guests", guests: 0, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := PriceFor(h, tt.guests, tt.discount)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, q.BasePrice+q.AdditionalCharges-q.Discount, q.Total)
		})
	}
}

func TestQuote_Apply(t *testing.T) {
	b := &Booking{}
	Quote{BasePrice: 100, AdditionalCharges: 20, Discount: 10, Total: 110}.Apply(b)
	assert.Equal(t, int64(100), b.BasePrice)
	assert.Equal(t, int64(20), b.AdditionalCharges)
	assert.Equal(t, int64(10), b.Discount)
	assert.Equal(t, int64(110), b.TotalAmount)
}
