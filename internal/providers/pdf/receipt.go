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

// ReceiptData carries the rendered fields of a rent payment receipt.
// Amounts arrive preformatted so the renderer stays currency-agnostic.
type ReceiptData struct {
	ReceiptNumber string
	TenantName    string
	TenantEmail   string
	LandlordName  string
	PropertyLabel string
	BillingPeriod string
	ChargeKind    string
	DatePaid      string
	Channel       string
	Reference     string
	BaseAmount    string
	Penalty       string
	Total         string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(12, "Rent Payment Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Billing period: "+data.BillingPeriod, props.Text{Top: 8}),
			text.New("Reference: "+data.Reference, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Paid via: "+data.Channel, props.Text{Top: 0}),
			text.New("Property: "+data.PropertyLabel, props.Text{Top: 4}),
		),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Tenant", props.Text{Style: fontstyle.Bold}),
			text.New(data.TenantName, props.Text{Top: 5}),
			text.New(data.TenantEmail, props.Text{Top: 9}),
		),
		col.New(6).Add(
			text.New("Landlord", props.Text{Style: fontstyle.Bold}),
			text.New(data.LandlordName, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, data.Total+" paid on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, data.ChargeKind+" for "+data.BillingPeriod, props.Text{Size: 9}),
		text.NewCol(4, data.BaseAmount, props.Text{Size: 9, Align: align.Right}),
	)
	if data.Penalty != "" {
		m.AddRow(10,
			text.NewCol(8, "Late payment penalty", props.Text{Size: 9}),
			text.NewCol(4, data.Penalty, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(6),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(4, data.Total, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
