package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddLine_MergesSameProduct(t *testing.T) {
	order, err := NewOrder("T02", "u1", time.Now())
	require.NoError(t, err)

	require.NoError(t, order.AddLine(5, "Coffee", price("2.50"), 2, ""))
	require.NoError(t, order.AddLine(5, "Coffee", price("2.50"), 1, ""))

	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Quantity)
	assert.True(t, price("7.50").Equal(order.Total()))
}

func TestTotal_IsSumOfSubtotals(t *testing.T) {
	order, _ := NewOrder("T01", "u1", time.Now())
	assert.True(t, order.Total().IsZero())

	require.NoError(t, order.AddLine(1, "Tea", price("1.20"), 3, ""))
	require.NoError(t, order.AddLine(2, "Cake", price("4.05"), 1, "no nuts"))
	assert.True(t, price("7.65").Equal(order.Total()))
	assert.Equal(t, 4, order.ItemCount())

	require.NoError(t, order.SetQuantity(1, 1))
	assert.True(t, price("5.25").Equal(order.Total()))

	require.NoError(t, order.SetQuantity(2, 0))
	assert.True(t, price("1.20").Equal(order.Total()))

	require.NoError(t, order.RemoveLine(1))
	assert.True(t, order.Total().IsZero())
	require.ErrorIs(t, order.RemoveLine(1), ErrLineNotFound)
}

func TestAddLine_Validates(t *testing.T) {
	order, _ := NewOrder("T01", "u1", time.Now())
	require.ErrorIs(t, order.AddLine(0, "x", price("1"), 1, ""), ErrInvalidProduct)
	require.ErrorIs(t, order.AddLine(1, "x", price("1"), 0, ""), ErrInvalidQuantity)
	require.ErrorIs(t, order.AddLine(1, "x", price("-1"), 1, ""), ErrInvalidPrice)
}

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateOpen, StateInProgress, true},
		{StateOpen, StatePaid, true},
		{StateOpen, StateCancelled, true},
		{StateInProgress, StatePaid, true},
		{StateInProgress, StateCancelled, true},
		{StateInProgress, StateOpen, false},
		{StatePaid, StateClosed, true},
		{StatePaid, StateOpen, false},
		{StateCancelled, StateOpen, false},
		{StateClosed, StateOpen, false},
		{StateOpen, StateClosed, false},
	}
	for _, tc := range cases {
		order := &Order{TableID: "T01", State: tc.from}
		err := order.Transition(tc.to, time.Now())
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, order.State)
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.from, order.State)
		}
	}
}

func TestTransition_StampsClosedAt(t *testing.T) {
	at := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	order, _ := NewOrder("T01", "u1", at.Add(-time.Hour))
	require.NoError(t, order.Transition(StateInProgress, at))
	assert.Nil(t, order.ClosedAt)
	require.NoError(t, order.Transition(StatePaid, at))
	require.NotNil(t, order.ClosedAt)
	assert.Equal(t, at, *order.ClosedAt)
	require.ErrorIs(t, order.AddLine(1, "x", price("1"), 1, ""), ErrNotEditable)
}

func TestClone_IsDeep(t *testing.T) {
	order, _ := NewOrder("T01", "u1", time.Now())
	require.NoError(t, order.AddLine(1, "Tea", price("1.20"), 1, ""))
	clone := order.Clone()
	clone.Lines[0].Quantity = 9
	assert.Equal(t, 1, order.Lines[0].Quantity)
}

func TestParseState(t *testing.T) {
	s, err := ParseState("in-progress")
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, s)
	_, err = ParseState("refunded")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFingerprint_TracksBillableContent(t *testing.T) {
	o, err := NewOrder("T01", "u1", time.Now())
	require.NoError(t, err)
	o.ID = 3
	empty := o.Fingerprint()
	require.NoError(t, o.AddLine(1, "Tea", decimal.RequireFromString("1.20"), 1, ""))
	one := o.Fingerprint()
	assert.NotEqual(t, empty, one)

	clone := o.Clone()
	assert.Equal(t, one, clone.Fingerprint())

	require.NoError(t, clone.SetQuantity(1, 2))
	assert.NotEqual(t, one, clone.Fingerprint())
}
