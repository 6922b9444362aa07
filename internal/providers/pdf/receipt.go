package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is the pre-formatted content of a bill receipt.
type ReceiptData struct {
	ClientName    string
	ClientAddress string
	ClientContact string

	BillNumber  string
	BillDate    string
	NextBilling string
	Status      string

	MemberName    string
	MemberContact string
	ScheduleName  string

	Lines []ReceiptLine

	Total string
	Paid  string
	Due   string

	Payments []ReceiptPayment
}

type ReceiptLine struct {
	Description string
	Kind        string
	Amount      string
}

type ReceiptPayment struct {
	Reference string
	PaidAt    string
	Method    string
	Amount    string
}

func (p *PDFProvider) GenerateBillReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, receipt.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Bill number: "+receipt.BillNumber, props.Text{Top: 0}),
			text.New("Bill date: "+receipt.BillDate, props.Text{Top: 4}),
			text.New("Next billing: "+receipt.NextBilling, props.Text{Top: 8}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(receipt.ClientName, props.Text{Style: fontstyle.Bold}),
			text.New(receipt.ClientAddress, props.Text{Top: 5}),
			text.New(receipt.ClientContact, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Member", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.MemberName, props.Text{Top: 5}),
			text.New(receipt.MemberContact, props.Text{Top: 9}),
			text.New(receipt.ScheduleName, props.Text{Top: 13}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Type", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range receipt.Lines {
		m.AddRow(8,
			text.NewCol(8, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Kind, props.Text{Size: 9}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, receipt.Total, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(2, receipt.Paid, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Due", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, receipt.Due, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	if len(receipt.Payments) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Payments", props.Text{Size: 11, Style: fontstyle.Bold, Top: 4}),
		)
		for _, payment := range receipt.Payments {
			m.AddRow(8,
				text.NewCol(5, payment.Reference, props.Text{Size: 8}),
				text.NewCol(3, payment.PaidAt, props.Text{Size: 8}),
				text.NewCol(2, payment.Method, props.Text{Size: 8}),
				text.NewCol(2, payment.Amount, props.Text{Size: 8, Align: align.Right}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
