package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Posting is a ledger line addressed by account code. Accounts are created
// per client on first use.
type Posting struct {
	Account   LedgerAccountCode
	Direction LedgerEntryDirection
	Amount    decimal.Decimal
}

type CreateEntryRequest struct {
	ClientID   snowflake.ID
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Postings   []Posting
}

type Service interface {
	// CreateEntry is idempotent per (client, source type, source id). db may be
	// a caller transaction; nil opens a new one.
	CreateEntry(ctx context.Context, db *gorm.DB, req CreateEntryRequest) error
	AccountBalance(ctx context.Context, clientID snowflake.ID, code LedgerAccountCode) (decimal.Decimal, error)
}

var (
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(postings []Posting) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, posting := range postings {
		switch posting.Direction {
		case LedgerEntryDirectionDebit:
			debit = debit.Add(posting.Amount)
		case LedgerEntryDirectionCredit:
			credit = credit.Add(posting.Amount)
		default:
			return ErrInvalidLineDirection
		}
	}
	if !debit.Equal(credit) {
		return ErrUnbalancedEntry
	}
	return nil
}

// BillIssuedPostings moves the bill total into receivables.
func BillIssuedPostings(amount decimal.Decimal) []Posting {
	return []Posting{
		{Account: AccountCodeAccountsReceivable, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeMembershipRevenue, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}

// PaymentPostings settles receivables into the account for the payment method.
func PaymentPostings(method string, amount decimal.Decimal) []Posting {
	asset := AccountCodeCash
	if method == "card" {
		asset = AccountCodeCard
	}
	return []Posting{
		{Account: asset, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeAccountsReceivable, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}
