package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memberbill/internal/clock"
	ledgerdomain "github.com/smallbiznis/memberbill/internal/ledger/domain"
	"github.com/smallbiznis/memberbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *testutil.DBHandle) {
	t.Helper()
	db := testutil.OpenDB(t,
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
	)
	node := testutil.Node(t)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}).(*Service)
	return svc, &testutil.DBHandle{DB: db, Node: node}
}

func TestCreateEntryPostsBalancedLines(t *testing.T) {
	svc, h := newTestService(t)
	ctx := context.Background()
	clientID := h.Node.Generate()
	billID := h.Node.Generate()
	paymentID := h.Node.Generate()

	require.NoError(t, svc.CreateEntry(ctx, nil, ledgerdomain.CreateEntryRequest{
		ClientID:   clientID,
		SourceType: ledgerdomain.SourceTypeBill,
		SourceID:   billID,
		Currency:   "INR",
		OccurredAt: time.Now(),
		Postings:   ledgerdomain.BillIssuedPostings(decimal.NewFromInt(2800)),
	}))
	require.NoError(t, svc.CreateEntry(ctx, nil, ledgerdomain.CreateEntryRequest{
		ClientID:   clientID,
		SourceType: ledgerdomain.SourceTypePayment,
		SourceID:   paymentID,
		Currency:   "INR",
		OccurredAt: time.Now(),
		Postings:   ledgerdomain.PaymentPostings("cash", decimal.NewFromInt(1000)),
	}))

	receivable, err := svc.AccountBalance(ctx, clientID, ledgerdomain.AccountCodeAccountsReceivable)
	require.NoError(t, err)
	assert.True(t, receivable.Equal(decimal.NewFromInt(1800)), "got %s", receivable)

	cash, err := svc.AccountBalance(ctx, clientID, ledgerdomain.AccountCodeCash)
	require.NoError(t, err)
	assert.True(t, cash.Equal(decimal.NewFromInt(1000)), "got %s", cash)
}

func TestCreateEntryIsIdempotentPerSource(t *testing.T) {
	svc, h := newTestService(t)
	ctx := context.Background()
	clientID := h.Node.Generate()
	billID := h.Node.Generate()

	req := ledgerdomain.CreateEntryRequest{
		ClientID:   clientID,
		SourceType: ledgerdomain.SourceTypeBill,
		SourceID:   billID,
		Currency:   "INR",
		OccurredAt: time.Now(),
		Postings:   ledgerdomain.BillIssuedPostings(decimal.NewFromInt(500)),
	}
	require.NoError(t, svc.CreateEntry(ctx, nil, req))
	require.NoError(t, svc.CreateEntry(ctx, nil, req))

	var entries int64
	require.NoError(t, h.DB.Model(&ledgerdomain.LedgerEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)

	var lines int64
	require.NoError(t, h.DB.Model(&ledgerdomain.LedgerEntryLine{}).Count(&lines).Error)
	assert.Equal(t, int64(2), lines)
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	svc, h := newTestService(t)

	err := svc.CreateEntry(context.Background(), nil, ledgerdomain.CreateEntryRequest{
		ClientID:   h.Node.Generate(),
		SourceType: ledgerdomain.SourceTypeBill,
		SourceID:   h.Node.Generate(),
		Currency:   "INR",
		OccurredAt: time.Now(),
		Postings: []ledgerdomain.Posting{
			{Account: ledgerdomain.AccountCodeAccountsReceivable, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: decimal.NewFromInt(10)},
			{Account: ledgerdomain.AccountCodeMembershipRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: decimal.NewFromInt(9)},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedEntry)
}

func TestCreateEntryValidatesHeader(t *testing.T) {
	svc, h := newTestService(t)
	postings := ledgerdomain.BillIssuedPostings(decimal.NewFromInt(1))

	cases := []struct {
		name string
		req  ledgerdomain.CreateEntryRequest
		want error
	}{
		{"client", ledgerdomain.CreateEntryRequest{SourceType: "bill", SourceID: 1, Currency: "INR", OccurredAt: time.Now(), Postings: postings}, ledgerdomain.ErrInvalidClient},
		{"source", ledgerdomain.CreateEntryRequest{ClientID: h.Node.Generate(), SourceType: "bill", Currency: "INR", OccurredAt: time.Now(), Postings: postings}, ledgerdomain.ErrInvalidSourceID},
		{"currency", ledgerdomain.CreateEntryRequest{ClientID: h.Node.Generate(), SourceType: "bill", SourceID: 1, OccurredAt: time.Now(), Postings: postings}, ledgerdomain.ErrInvalidCurrency},
		{"lines", ledgerdomain.CreateEntryRequest{ClientID: h.Node.Generate(), SourceType: "bill", SourceID: 1, Currency: "INR", OccurredAt: time.Now()}, ledgerdomain.ErrInvalidEntryLines},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.CreateEntry(context.Background(), nil, tc.req), tc.want)
		})
	}
}
