package mpp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/lnwire"
)

func TestSplitAssignsLargestRoutesFirst(t *testing.T) {
	routes := []CandidateRoute{
		{ID: "a", MaxAmt: 300_000},
		{ID: "b", MaxAmt: 500_000},
		{ID: "c", MaxAmt: 1_000_000},
	}

	parts, err := Split(1_200_000, routes, 4, 10_000)
	require.NoError(t, err)

	var sum lnwire.MilliSatoshi
	for _, p := range parts {
		sum += p.Amount
	}
	require.Equal(t, lnwire.MilliSatoshi(1_200_000), sum)
	require.Equal(t, "c", parts[0].RouteID)
}

func TestSplitFailsOnInsufficientLiquidity(t *testing.T) {
	routes := []CandidateRoute{{ID: "a", MaxAmt: 100_000}}

	_, err := Split(1_000_000, routes, DefaultMaxParts, 1_000)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSplitFailsWhenPartsBudgetExceeded(t *testing.T) {
	routes := []CandidateRoute{
		{ID: "a", MaxAmt: 100_000},
		{ID: "b", MaxAmt: 100_000},
		{ID: "c", MaxAmt: 100_000},
	}

	_, err := Split(300_000, routes, 2, 1_000)
	require.ErrorIs(t, err, ErrTooManyParts)
}

func TestReceiverRegistryFulfillsOnceTotalReached(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	reg := NewReceiverRegistry(clk, time.Minute)
	stop := reg.Start(time.Second)
	defer stop()

	hash := [32]byte{1}
	secret := [32]byte{2}
	reg.RegisterInvoice(Invoice{PaymentHash: hash, PaymentSecret: secret})

	require.NoError(t, reg.HandlePart(PartArrival{
		PaymentHash: hash, HTLCID: 1, PaymentSecret: secret,
		AmountMsat: 400_000, TotalMsat: 1_000_000,
	}))
	require.NoError(t, reg.HandlePart(PartArrival{
		PaymentHash: hash, HTLCID: 2, PaymentSecret: secret,
		AmountMsat: 600_000, TotalMsat: 1_000_000,
	}))

	select {
	case action := <-reg.Actions():
		require.True(t, action.Fulfill)
		require.ElementsMatch(t, []uint64{1, 2}, action.HTLCIDs)
	case <-time.After(time.Second):
		t.Fatal("expected a fulfill action")
	}
}

func TestReceiverRegistryRejectsUnknownPaymentHash(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	reg := NewReceiverRegistry(clk, time.Minute)
	stop := reg.Start(time.Second)
	defer stop()

	err := reg.HandlePart(PartArrival{PaymentHash: [32]byte{9}, HTLCID: 1, AmountMsat: 1000, TotalMsat: 1000})
	require.Error(t, err)

	select {
	case action := <-reg.Actions():
		require.Equal(t, FailureIncorrectOrUnknownPaymentDetails, action.FailureCode)
	case <-time.After(time.Second):
		t.Fatal("expected a rejection action")
	}
}

func TestReceiverRegistrySweepsExpiredParts(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	reg := NewReceiverRegistry(clk, 10*time.Second)
	stop := reg.Start(5 * time.Second)
	defer stop()

	hash := [32]byte{3}
	secret := [32]byte{4}
	reg.RegisterInvoice(Invoice{PaymentHash: hash, PaymentSecret: secret})

	require.NoError(t, reg.HandlePart(PartArrival{
		PaymentHash: hash, HTLCID: 1, PaymentSecret: secret,
		AmountMsat: 100, TotalMsat: 1_000_000,
	}))

	clk.SetTime(clk.Now().Add(20 * time.Second))

	select {
	case action := <-reg.Actions():
		require.Equal(t, FailureMPPTimeout, action.FailureCode)
	case <-time.After(time.Second):
		t.Fatal("expected a timeout action")
	}
}
