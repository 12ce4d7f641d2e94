package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
)

func TestComputeFee(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ten := decimal.NewFromInt(10)

	tests := []struct {
		name     string
		returned time.Time
		wantDays int64
		wantFee  string
	}{
		{name: "same minute is one day", returned: issued.Add(time.Minute), wantDays: 1, wantFee: "10"},
		{name: "just under two days is one day", returned: issued.Add(47 * time.Hour), wantDays: 1, wantFee: "10"},
		{name: "exactly two days", returned: issued.Add(48 * time.Hour), wantDays: 2, wantFee: "20"},
		{name: "thirty days", returned: issued.AddDate(0, 0, 30), wantDays: 30, wantFee: "300"},
		{name: "clock skew counts as one day", returned: issued.Add(-time.Hour), wantDays: 1, wantFee: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDays, DaysHeld(issued, tt.returned))
			assert.Equal(t, tt.wantFee, ComputeFee(issued, tt.returned, ten).String())
		})
	}

	t.Run("zero rate means zero fee", func(t *testing.T) {
		assert.True(t, ComputeFee(issued, issued.AddDate(0, 0, 5), decimal.Zero).IsZero())
	})

	t.Run("fractional rate", func(t *testing.T) {
		assert.Equal(t, "7.5", ComputeFee(issued, issued.AddDate(0, 0, 3), decimal.RequireFromString("2.50")).String())
	})

	t.Run("rounds to cents", func(t *testing.T) {
		assert.Equal(t, "0.13", ComputeFee(issued, issued.Add(time.Hour), decimal.RequireFromString("0.125")).String())
		assert.Equal(t, "1.11", ComputeFee(issued, issued.AddDate(0, 0, 3), decimal.RequireFromString("0.3699")).String())
	})
}

func TestTransaction_Lifecycle(t *testing.T) {
	issued := time.Now()
	txn := NewTransaction(domain.NewTransactionID(), domain.NewMemberID(), domain.NewBookID(), issued)
	assert.Equal(t, StatusOpen, txn.Status())
	assert.False(t, txn.Fee.Valid)

	require.NoError(t, txn.CanReturn())
	txn.ApplyReturn(issued.Add(49*time.Hour), decimal.NewFromInt(20))
	assert.Equal(t, StatusClosed, txn.Status())
	assert.True(t, txn.Fee.Valid)
	assert.Equal(t, issued, txn.IssueDate)

	err := txn.CanReturn()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestTransaction_CloneDoesNotAlias(t *testing.T) {
	txn := NewTransaction(domain.NewTransactionID(), domain.NewMemberID(), domain.NewBookID(), time.Now())
	txn.ApplyReturn(time.Now(), decimal.NewFromInt(10))
	c := txn.Clone()
	*c.ReturnDate = time.Time{}
	assert.False(t, txn.ReturnDate.IsZero())
}
