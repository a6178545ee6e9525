package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Flags(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusConfirmed.IsActive())
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusCompleted.IsActive())

	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())

	assert.False(t, Status("archived").IsValid())
}

func TestPaymentMethod(t *testing.T) {
	for _, s := range []string{"online", "cash", "upi", "card"} {
		m, err := ParsePaymentMethod(s)
		require.NoError(t, err)
		assert.Equal(t, s == "online", m.UsesGateway())
	}

	_, err := ParsePaymentMethod("cheque")
	assert.True(t, errors.Is(err, ErrInvalidMethod))

	assert.Panics(t, func() { PaymentMethod("cheque").UsesGateway() })
}

func TestBooking_Cancel(t *testing.T) {
	created := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	t.Run("paid online booking owes a refund", func(t *testing.T) {
		b := &Booking{Status: StatusConfirmed, PaymentStatus: PaymentPaid, PaymentMethod: MethodOnline, CreatedAt: created}
		require.NoError(t, b.Cancel("change of plans", created.Add(time.Hour)))

		assert.Equal(t, StatusCancelled, b.Status)
		assert.Equal(t, PaymentRefundPending, b.PaymentStatus)
		require.NotNil(t, b.CancellationReason)
		assert.Equal(t, "change of plans", *b.CancellationReason)
	})

	t.Run("unpaid booking keeps payment status", func(t *testing.T) {
		b := &Booking{Status: StatusPending, PaymentStatus: PaymentPending, PaymentMethod: MethodCash, CreatedAt: created}
		require.NoError(t, b.Cancel("", created.Add(time.Hour)))

		assert.Equal(t, PaymentPending, b.PaymentStatus)
		assert.Nil(t, b.CancellationReason)
	})

	t.Run("cancelled_at never precedes created_at", func(t *testing.T) {
		b := &Booking{Status: StatusPending, PaymentMethod: MethodCash, CreatedAt: created}
		require.NoError(t, b.Cancel("", created.Add(-time.Minute)))

		require.NotNil(t, b.CancelledAt)
		assert.True(t, b.CancelledAt.Equal(created))
	})

	t.Run("terminal booking cannot be cancelled", func(t *testing.T) {
		b := &Booking{Status: StatusCompleted, PaymentMethod: MethodCash, CreatedAt: created}
		err := b.Cancel("", created)
		assert.True(t, errors.Is(err, ErrInvalidState))
		assert.Equal(t, StatusCompleted, b.Status)
	})
}

func TestBooking_MarkPaid(t *testing.T) {
	now := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	b := &Booking{Status: StatusPending, PaymentStatus: PaymentPending, PaymentMethod: MethodOnline}
	require.NoError(t, b.MarkPaid(5000, now))
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
	assert.Equal(t, int64(5000), b.PaidAmount)

	err := b.MarkPaid(5000, now)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, int64(5000), b.PaidAmount)
}

func TestBooking_CancelDeadline(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	want := time.Date(2025, 12, 18, 0, 0, 0, 0, ist)

	b := &Booking{EventDate: date}
	assert.True(t, want.Equal(b.CancelDeadline(ist, 48*time.Hour)))

	start := "23:00"
	b.StartTime = &start
	assert.True(t, want.Equal(b.CancelDeadline(ist, 48*time.Hour)))
	assert.True(t, b.CancelDeadline(ist, 48*time.Hour).Equal(time.Date(2025, 12, 17, 18, 30, 0, 0, time.UTC)))
}

func TestBalanceDue(t *testing.T) {
	b := &Booking{TotalAmount: 20000, PaidAmount: 5000}
	assert.Equal(t, int64(15000), b.BalanceDue())

	b.PaidAmount = 20000
	assert.Zero(t, b.BalanceDue())
}

func TestNewReference(t *testing.T) {
	date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]bool)
	for range 100 {
		ref := NewReference(date)
		assert.Regexp(t, `^BK-20251220-[A-Z2-7]{6}$`, ref)
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 95)
}
