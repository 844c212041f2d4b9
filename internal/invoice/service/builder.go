package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/invoice/format"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/internal/usage/pricing"
	"github.com/smallbiznis/warebill/pkg/money"
	"github.com/smallbiznis/warebill/pkg/period"
	"github.com/smallbiznis/warebill/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type unpricedKey struct {
	kind   string
	reason string
}

// CreateInvoice claims the period key first, then consumes pending usage in the same transaction.
func (s *Service) CreateInvoice(ctx context.Context, p authz.Principal, req domain.CreateInvoiceRequest) (snowflake.ID, error) {
	req.CurrencyCode = strings.TrimSpace(req.CurrencyCode)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := validation.Struct(req); err != nil {
		if apperror.CodeOf(err) == apperror.CodeInvalidArgument {
			if ae, ok := apperror.As(err); ok && ae.Field == "currency_code" {
				return 0, domain.ErrInvalidCurrency
			}
		}
		return 0, err
	}
	r, err := period.Parse(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		if errors.Is(err, period.ErrInvertedDate) {
			return 0, apperror.ErrInvalidDateRange.WithField("period_end")
		}
		return 0, apperror.ErrInvalidDateRange
	}

	parentID := p.ParentOr(req.ParentAccountID)
	if err := p.RequireClient(authz.CapInvoiceCreate, parentID, req.ClientAccountID); err != nil {
		return 0, err
	}
	if err := s.accounts.ValidateScope(ctx, parentID, req.ClientAccountID, req.WarehouseID); err != nil {
		return 0, err
	}

	policy := s.policy.Get()
	status := domain.Status(policy.InitialInvoiceStatus)
	if req.Status != "" {
		status = domain.Status(req.Status)
	}

	log := s.log.Named("builder").With(
		zap.String("parent_account_id", parentID.String()),
		zap.String("client_account_id", req.ClientAccountID.String()),
		zap.String("warehouse_id", req.WarehouseID.String()),
		zap.String("period", r.String()),
	)

	now := s.clock.Now()
	var created *domain.Invoice
	unpriced := make(map[unpricedKey]int)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockParent(ctx, tx, parentID); err != nil {
			return err
		}
		seq, err := s.repo.NextSequence(ctx, tx, parentID)
		if err != nil {
			return err
		}
		number, err := format.Number(policy.InvoiceNumberFormat, r.Start, seq)
		if err != nil {
			return apperror.New(apperror.CodeInternal, "invoice numbering is misconfigured").Wrap(err)
		}

		inv := &domain.Invoice{
			ID:              s.genID.Generate(),
			ParentAccountID: parentID,
			ClientAccountID: req.ClientAccountID,
			WarehouseID:     req.WarehouseID,
			Sequence:        seq,
			Number:          number,
			PeriodStart:     r.Start,
			PeriodEnd:       r.End,
			Status:          status,
			CurrencyCode:    req.CurrencyCode,
			CreatedBy:       p.Subject,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if status == domain.StatusIssued {
			issued := now
			due := now.AddDate(0, 0, policy.PaymentTermsDays)
			inv.IssueDate = &issued
			inv.DueDate = &due
		}

		inserted, err := s.repo.InsertIfAbsent(ctx, tx, inv)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrInvoiceAlreadyExists
		}

		pending, err := s.usage.ListPending(ctx, tx, usagedomain.Query{
			ParentAccountID: parentID,
			ClientAccountID: req.ClientAccountID,
			WarehouseID:     req.WarehouseID,
			From:            r.Start,
			Until:           r.Until(),
		})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return domain.ErrNoPendingUsage
		}

		pricer := pricing.New(policy, catalogdomain.NewMemo(s.rates.ResolverFor(tx)))
		items := make([]*domain.LineItem, 0, len(pending))
		consumed := make([]snowflake.ID, 0, len(pending))
		hidden := 0
		for _, entry := range pending {
			priced, err := pricer.Price(ctx, entry)
			if err != nil {
				return err
			}
			switch priced.Outcome {
			case pricing.Hidden:
				hidden++
				continue
			case pricing.Unpriced:
				unpriced[unpricedKey{kind: string(entry.Kind), reason: priced.Reason}]++
				log.Warn("usage entry left pending",
					zap.String("ledger_entry_id", entry.ID.String()),
					zap.String("kind", string(entry.Kind)),
					zap.String("service_id", entry.ServiceID),
					zap.String("reason", priced.Reason),
				)
				continue
			}
			items = append(items, lineItemFrom(s.genID.Generate(), inv.ID, entry, priced, now))
			consumed = append(consumed, entry.ID)
		}
		if len(items) == 0 {
			return domain.ErrNoPendingUsage
		}

		var subtotal int64
		for _, item := range items {
			subtotal += item.AmountCents
		}
		tax, err := s.tax.TaxFor(ctx, inv, items, req.TaxCents)
		if err != nil {
			return err
		}
		inv.SubtotalCents = subtotal
		inv.TaxCents = tax
		inv.TotalCents = subtotal + tax

		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		n, err := s.usage.MarkInvoiced(ctx, tx, consumed, inv.ID, now)
		if err != nil {
			return err
		}
		if n != int64(len(consumed)) {
			return domain.ErrUsageConsumed
		}
		if err := s.repo.UpdateFields(ctx, tx, inv.ID, map[string]any{
			"subtotal_cents": inv.SubtotalCents,
			"tax_cents":      inv.TaxCents,
			"total_cents":    inv.TotalCents,
		}); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, p, auditdomain.Event{
			ParentAccountID: parentID,
			Action:          auditdomain.ActionInvoiceCreated,
			TargetType:      "invoice",
			TargetID:        inv.ID,
			Metadata: map[string]any{
				"number":         inv.Number,
				"status":         string(inv.Status),
				"line_items":     len(items),
				"subtotal_cents": inv.SubtotalCents,
				"hidden":         hidden,
			},
		}); err != nil {
			return err
		}
		created = inv
		return nil
	})

	for k, n := range unpriced {
		s.metrics.RecordUnpriced(ctx, k.kind, k.reason, n)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvoiceAlreadyExists):
			s.metrics.RecordInvoiceConflict(ctx)
			log.Info("invoice already exists for period")
		case errors.Is(err, domain.ErrNoPendingUsage):
			s.metrics.RecordNoPendingUsage(ctx)
		}
		if _, ok := apperror.As(err); !ok {
			log.Error("invoice build failed", zap.Error(err))
			return 0, apperror.ErrStorageWrite.Wrap(err)
		}
		return 0, err
	}

	s.metrics.RecordInvoiceCreated(ctx, string(created.Status))
	log.Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("number", created.Number),
		zap.Int64("total_cents", created.TotalCents),
	)
	return created.ID, nil
}

func lineItemFrom(id, invoiceID snowflake.ID, e *usagedomain.LedgerEntry, priced pricing.Priced, now time.Time) *domain.LineItem {
	entryID := e.ID
	return &domain.LineItem{
		ID:               id,
		InvoiceID:        invoiceID,
		LedgerEntryID:    &entryID,
		Kind:             string(e.Kind),
		ServiceID:        e.ServiceID,
		Description:      e.Description,
		Quantity:         e.Quantity,
		Unit:             e.Unit,
		RateCents:        priced.RateCents,
		AmountCents:      priced.AmountCents,
		AmountOverridden: priced.AmountCents != money.AmountCents(e.Quantity, priced.RateCents),
		OccurredAt:       e.OccurredAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
