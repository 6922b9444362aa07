package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateBillReceipt(t *testing.T) {
	reader, err := New().GenerateBillReceipt(context.Background(), ReceiptData{
		ClientName: "Sunrise Academy",
		BillNumber: "1790",
		BillDate:   "2024-06-10",
		Status:     "PARTIALLY_PAID",
		MemberName: "Asha",
		Lines: []ReceiptLine{
			{Description: "Admission fee", Kind: "admission", Amount: "500.00"},
			{Description: "Tuition", Kind: "recurring", Amount: "2000.00"},
		},
		Total:    "INR 2800.00",
		Paid:     "INR 1000.00",
		Due:      "INR 1800.00",
		Payments: []ReceiptPayment{{Reference: "01J0", PaidAt: "2024-06-11", Method: "cash", Amount: "1000.00"}},
	})
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Greater(t, len(body), 4)
	require.Equal(t, "%PDF", string(body[:4]))
}
