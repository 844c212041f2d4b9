// Package render turns an invoice into a printable document.
package render

import (
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// View is the pre-formatted content of an invoice PDF. Amounts are display strings.
type View struct {
	IssuerName    string
	WarehouseName string
	Number        string
	Status        string
	IssueDate     string
	DueDate       string
	ServicePeriod string

	BillToName  string
	BillToEmail string

	Items []ItemView

	Currency string
	Subtotal string
	Tax      string
	Total    string
}

type ItemView struct {
	Date        string
	Description string
	Quantity    string
	Rate        string
	Amount      string
}

type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(v View) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, v.Status, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 4}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+v.Number, props.Text{Size: 9}),
			text.New("Date of issue: "+orDash(v.IssueDate), props.Text{Size: 9, Top: 4}),
			text.New("Date due: "+orDash(v.DueDate), props.Text{Size: 9, Top: 8}),
			text.New("Service period: "+v.ServicePeriod, props.Text{Size: 9, Top: 12}),
		),
		col.New(6).Add(
			text.New(v.IssuerName, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
			text.New(v.WarehouseName, props.Text{Size: 9, Align: align.Right, Top: 5}),
		),
	)

	m.AddRow(18,
		col.New(12).Add(
			text.New("Bill to", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.New(v.BillToName, props.Text{Size: 9, Top: 5}),
			text.New(v.BillToEmail, props.Text{Size: 9, Top: 9}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, v.Total+" "+v.Currency+" due", props.Text{Size: 14, Style: fontstyle.Bold, Top: 3}),
	)

	header := props.Text{Style: fontstyle.Bold, Size: 9}
	right := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(8,
		text.NewCol(2, "Date", header),
		text.NewCol(5, "Description", header),
		text.NewCol(1, "Qty", right),
		text.NewCol(2, "Rate", right),
		text.NewCol(2, "Amount", right),
	)

	cell := props.Text{Size: 8}
	cellRight := props.Text{Size: 8, Align: align.Right}
	for _, item := range v.Items {
		m.AddRow(7,
			text.NewCol(2, item.Date, cell),
			text.NewCol(5, item.Description, cell),
			text.NewCol(1, item.Quantity, cellRight),
			text.NewCol(2, item.Rate, cellRight),
			text.NewCol(2, item.Amount, cellRight),
		)
	}

	totals := []struct {
		label string
		value string
		style fontstyle.Type
	}{
		{"Subtotal", v.Subtotal, fontstyle.Normal},
		{"Tax", v.Tax, fontstyle.Normal},
		{"Total", v.Total, fontstyle.Bold},
	}
	for _, t := range totals {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, t.label, props.Text{Size: 9, Style: t.style}),
			text.NewCol(2, t.value, props.Text{Size: 9, Style: t.style, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
