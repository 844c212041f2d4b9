package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/invoice/format"
	"github.com/smallbiznis/warebill/internal/invoice/render"
	"github.com/smallbiznis/warebill/pkg/money"
	"github.com/smallbiznis/warebill/pkg/period"
)

func (s *Service) RenderPDF(ctx context.Context, p authz.Principal, id snowflake.ID) (*domain.PDFDocument, error) {
	detail, err := s.GetInvoice(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.RenderDetail(ctx, detail)
}

func (s *Service) RenderDetail(ctx context.Context, detail *domain.InvoiceDetail) (*domain.PDFDocument, error) {
	view, clientName := s.buildView(ctx, detail)
	content, err := s.renderer.Render(view)
	if err != nil {
		return nil, apperror.New(apperror.CodeInternal, "invoice could not be rendered").Wrap(err)
	}
	return &domain.PDFDocument{
		Filename: format.PDFFilename(detail.Number, clientName),
		Content:  content,
	}, nil
}

// buildView tolerates missing account rows; the document still renders with blanks.
func (s *Service) buildView(ctx context.Context, d *domain.InvoiceDetail) (render.View, string) {
	view := render.View{
		Number:        d.Number,
		Status:        strings.ToUpper(string(d.Status)),
		ServicePeriod: d.PeriodStart.Format(period.DateLayout) + " to " + d.PeriodEnd.Format(period.DateLayout),
		Currency:      d.CurrencyCode,
		Subtotal:      money.FormatUSD(d.SubtotalCents),
		Tax:           money.FormatUSD(d.TaxCents),
		Total:         money.FormatUSD(d.TotalCents),
		WarehouseName: "All warehouses",
	}
	if d.IssueDate != nil {
		view.IssueDate = d.IssueDate.Format(period.DateLayout)
	}
	if d.DueDate != nil {
		view.DueDate = d.DueDate.Format(period.DateLayout)
	}
	if parent, err := s.accounts.GetParent(ctx, d.ParentAccountID); err == nil {
		view.IssuerName = parent.Name
	}
	var clientName string
	if client, err := s.accounts.GetClient(ctx, d.ClientAccountID); err == nil {
		clientName = client.Name
		view.BillToName = client.Name
		view.BillToEmail = client.BillingEmail
	}
	if d.WarehouseID != domain.AllWarehouses {
		if wh, err := s.accounts.GetWarehouse(ctx, d.WarehouseID); err == nil {
			view.WarehouseName = wh.Name
		}
	}

	view.Items = make([]render.ItemView, 0, len(d.LineItems))
	for _, item := range d.LineItems {
		view.Items = append(view.Items, render.ItemView{
			Date:        item.OccurredAt.Format(period.DateLayout),
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			Rate:        money.FormatUSD(item.RateCents),
			Amount:      money.FormatUSD(item.AmountCents),
		})
	}
	return view, clientName
}
