package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
)

func (s *Service) GetInvoice(ctx context.Context, p authz.Principal, id snowflake.ID) (*domain.InvoiceDetail, error) {
	if id == 0 {
		return nil, apperror.ErrMissingParameters.WithField("id")
	}
	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if err := p.RequireClient(authz.CapInvoiceRead, inv.ParentAccountID, inv.ClientAccountID); err != nil {
		return nil, err
	}
	return s.withItems(ctx, inv)
}

// LoadDetail skips principal checks; callers authorize by other means.
func (s *Service) LoadDetail(ctx context.Context, id snowflake.ID) (*domain.InvoiceDetail, error) {
	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return s.withItems(ctx, inv)
}

func (s *Service) withItems(ctx context.Context, inv *domain.Invoice) (*domain.InvoiceDetail, error) {
	items, err := s.repo.ListItems(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.LineItem{}
	}
	return &domain.InvoiceDetail{Invoice: *inv, LineItems: items}, nil
}

func (s *Service) ListInvoices(ctx context.Context, p authz.Principal, f domain.InvoiceFilter) (pagination.Result[*domain.Invoice], error) {
	filter := domain.ListFilter{
		ParentAccountID: p.ParentOr(f.ParentAccountID),
		ClientAccountID: f.ClientAccountID,
	}
	if p.Role == authz.RoleClientViewer {
		filter.ClientAccountID = p.ClientOr(f.ClientAccountID)
	}
	if filter.ParentAccountID == 0 {
		return pagination.Result[*domain.Invoice]{}, apperror.ErrMissingParameters.WithField("parent_account_id")
	}
	if err := p.RequireClient(authz.CapInvoiceRead, filter.ParentAccountID, filter.ClientAccountID); err != nil {
		return pagination.Result[*domain.Invoice]{}, err
	}
	if raw := strings.TrimSpace(f.Status); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			return pagination.Result[*domain.Invoice]{}, apperror.New(apperror.CodeInvalidArgument, "unknown invoice status").WithField("status")
		}
		filter.Status = st
	}

	policy := s.policy.Get()
	page := pagination.Normalize(f.Page, f.PageSize, policy.DefaultPageSize, policy.MaxPageSize)
	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return pagination.Result[*domain.Invoice]{}, err
	}
	rows, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return pagination.Result[*domain.Invoice]{}, err
	}
	return pagination.NewResult(rows, total, page), nil
}
