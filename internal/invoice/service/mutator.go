package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/pkg/money"
	"github.com/smallbiznis/warebill/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errInvalidQuantity = apperror.New(apperror.CodeInvalidArgument, "quantity must be positive").WithField("quantity")

func (s *Service) AddLineItem(ctx context.Context, p authz.Principal, invoiceID snowflake.ID, in domain.LineItemInput) (*domain.InvoiceSummary, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	qty := in.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	if qty.IsNegative() {
		return nil, errInvalidQuantity
	}
	if in.AmountCents != nil && *in.AmountCents < 0 {
		return nil, apperror.New(apperror.CodeInvalidAmount, "amount_cents must not be negative").WithField("amount_cents")
	}

	locate := func(*gorm.DB) (snowflake.ID, error) { return invoiceID, nil }
	return s.mutate(ctx, p, "add", auditdomain.ActionLineItemAdded, locate,
		func(tx *gorm.DB, inv *domain.Invoice, now time.Time) (snowflake.ID, error) {
			occurred := inv.PeriodEnd
			if in.OccurredAt != nil {
				occurred = in.OccurredAt.UTC()
			}
			item := &domain.LineItem{
				ID:          s.genID.Generate(),
				InvoiceID:   inv.ID,
				Kind:        domain.KindManual,
				ServiceID:   strings.TrimSpace(in.ServiceID),
				Description: in.Description,
				Quantity:    qty,
				RateCents:   *in.RateCents,
				OccurredAt:  occurred,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			priceItem(item, in.AmountCents, true)
			return item.ID, s.repo.InsertItems(ctx, tx, []*domain.LineItem{item})
		})
}

func (s *Service) UpdateLineItem(ctx context.Context, p authz.Principal, itemID snowflake.ID, patch domain.LineItemPatch) (*domain.InvoiceSummary, error) {
	if err := validation.Struct(patch); err != nil {
		return nil, err
	}
	if patch.Quantity != nil && !patch.Quantity.IsPositive() {
		return nil, errInvalidQuantity
	}
	if patch.AmountCents != nil && *patch.AmountCents < 0 {
		return nil, apperror.New(apperror.CodeInvalidAmount, "amount_cents must not be negative").WithField("amount_cents")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return nil, apperror.ErrMissingParameters.WithField("description")
	}

	return s.mutate(ctx, p, "update", auditdomain.ActionLineItemUpdated, s.locateItem(ctx, itemID),
		func(tx *gorm.DB, inv *domain.Invoice, now time.Time) (snowflake.ID, error) {
			item, err := s.itemOf(ctx, tx, inv.ID, itemID)
			if err != nil {
				return 0, err
			}
			repriced := false
			if patch.Description != nil {
				item.Description = strings.TrimSpace(*patch.Description)
			}
			if patch.Quantity != nil {
				item.Quantity = *patch.Quantity
				repriced = true
			}
			if patch.RateCents != nil {
				item.RateCents = *patch.RateCents
				repriced = true
			}
			if patch.OccurredAt != nil {
				item.OccurredAt = patch.OccurredAt.UTC()
			}
			priceItem(item, patch.AmountCents, repriced)
			item.UpdatedAt = now
			return item.ID, s.repo.SaveItem(ctx, tx, item)
		})
}

// DeleteLineItem may remove the last item; the invoice then totals its tax alone.
func (s *Service) DeleteLineItem(ctx context.Context, p authz.Principal, itemID snowflake.ID) (*domain.InvoiceSummary, error) {
	return s.mutate(ctx, p, "delete", auditdomain.ActionLineItemDeleted, s.locateItem(ctx, itemID),
		func(tx *gorm.DB, inv *domain.Invoice, _ time.Time) (snowflake.ID, error) {
			item, err := s.itemOf(ctx, tx, inv.ID, itemID)
			if err != nil {
				return 0, err
			}
			return item.ID, s.repo.DeleteItem(ctx, tx, item.ID)
		})
}

// priceItem applies an explicit amount, or recomputes round(quantity x rate) when asked.
func priceItem(item *domain.LineItem, explicit *int64, recompute bool) {
	switch {
	case explicit != nil:
		item.AmountCents = *explicit
		item.AmountOverridden = true
	case recompute:
		item.AmountCents = money.AmountCents(item.Quantity, item.RateCents)
		item.AmountOverridden = false
	}
}

func (s *Service) locateItem(ctx context.Context, itemID snowflake.ID) func(*gorm.DB) (snowflake.ID, error) {
	return func(tx *gorm.DB) (snowflake.ID, error) {
		item, err := s.repo.FindItem(ctx, tx, itemID)
		if err != nil {
			return 0, err
		}
		if item == nil {
			return 0, domain.ErrLineItemNotFound
		}
		return item.InvoiceID, nil
	}
}

// itemOf re-reads the item once the invoice row is locked.
func (s *Service) itemOf(ctx context.Context, tx *gorm.DB, invoiceID, itemID snowflake.ID) (*domain.LineItem, error) {
	item, err := s.repo.FindItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.InvoiceID != invoiceID {
		return nil, domain.ErrLineItemNotFound
	}
	return item, nil
}

type applyFunc func(tx *gorm.DB, inv *domain.Invoice, now time.Time) (snowflake.ID, error)

// mutate locks the invoice, gates on status, applies the change and recomputes totals from storage.
func (s *Service) mutate(
	ctx context.Context,
	p authz.Principal,
	op string,
	action string,
	locate func(*gorm.DB) (snowflake.ID, error),
	apply applyFunc,
) (*domain.InvoiceSummary, error) {
	policy := s.policy.Get()
	now := s.clock.Now()

	var summary *domain.InvoiceSummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoiceID, err := locate(tx)
		if err != nil {
			return err
		}
		inv, err := s.repo.FindForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrInvoiceNotFound
		}
		if err := p.RequireClient(authz.CapInvoiceEdit, inv.ParentAccountID, inv.ClientAccountID); err != nil {
			return err
		}
		if !policy.StatusMutable(string(inv.Status)) {
			return domain.ErrInvoiceNotEditable.WithMessage("invoice is %s and cannot be edited", inv.Status)
		}

		itemID, err := apply(tx, inv, now)
		if err != nil {
			return err
		}

		subtotal, count, err := s.repo.SumItems(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		total := subtotal + inv.TaxCents
		if err := s.repo.UpdateFields(ctx, tx, inv.ID, map[string]any{
			"subtotal_cents": subtotal,
			"total_cents":    total,
			"updated_at":     now,
		}); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, p, auditdomain.Event{
			ParentAccountID: inv.ParentAccountID,
			Action:          action,
			TargetType:      "invoice",
			TargetID:        inv.ID,
			Metadata: map[string]any{
				"line_item_id":   itemID.String(),
				"subtotal_cents": subtotal,
			},
		}); err != nil {
			return err
		}

		summary = &domain.InvoiceSummary{
			InvoiceID:     inv.ID,
			SubtotalCents: subtotal,
			TaxCents:      inv.TaxCents,
			TotalCents:    total,
			LineItemCount: count,
		}
		return nil
	})
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			s.log.Error("line item mutation failed", zap.String("op", op), zap.Error(err))
			return nil, apperror.ErrStorageWrite.Wrap(err)
		}
		return nil, err
	}

	s.metrics.RecordLineItemMutation(ctx, op)
	return summary, nil
}
