package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuctionTransitions(t *testing.T) {
	cases := []struct {
		from AuctionStatus
		to   AuctionStatus
		ok   bool
	}{
		{AuctionStatusUpcoming, AuctionStatusActive, true},
		{AuctionStatusUpcoming, AuctionStatusEnded, false},
		{AuctionStatusActive, AuctionStatusEnded, true},
		{AuctionStatusActive, AuctionStatusCancelled, true},
		{AuctionStatusEnded, AuctionStatusActive, false},
		{AuctionStatusEnded, AuctionStatusCancelled, false},
		{AuctionStatusCancelled, AuctionStatusActive, false},
	}
	for _, tc := range cases {
		a := &Auction{Status: tc.from}
		assert.Equal(t, tc.ok, a.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAuctionEndIsFinal(t *testing.T) {
	a := &Auction{ID: uuid.New(), Status: AuctionStatusActive}
	winner := uuid.New()
	amount := int64(700)
	require.NoError(t, a.End(&winner, &amount, 3, time.Now()))
	assert.Equal(t, AuctionStatusEnded, a.Status)

	other := uuid.New()
	require.Error(t, a.End(&other, &amount, 4, time.Now()))
	assert.Equal(t, winner, *a.WinnerID)
}

func TestBidOutbids(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a := &Bid{ID: uuid.New(), Amount: 500, Timestamp: t1}
	b := &Bid{ID: uuid.New(), Amount: 700, Timestamp: t1.Add(time.Minute)}
	c := &Bid{ID: uuid.New(), Amount: 700, Timestamp: t1.Add(2 * time.Minute)}

	assert.True(t, b.Outbids(a))
	assert.True(t, b.Outbids(c))
	assert.False(t, c.Outbids(b))
	assert.True(t, a.Outbids(nil))
}

func TestUnknownEnumRejected(t *testing.T) {
	var r struct {
		Method RefundMethod `json:"method"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"method":"crypto"}`), &r))
	require.NoError(t, json.Unmarshal([]byte(`{"method":"bank"}`), &r))
	assert.Equal(t, RefundMethodBank, r.Method)

	var s struct {
		Status AuctionStatus `json:"status"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"status":"closed"}`), &s))
}
