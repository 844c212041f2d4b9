package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransitionStatus moves an invoice along its lifecycle. Cancelling frees the period key
// but the consumed usage stays invoiced.
func (s *Service) TransitionStatus(ctx context.Context, p authz.Principal, id snowflake.ID, to string) (*domain.Invoice, error) {
	target, ok := domain.ParseStatus(to)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidArgument, "unknown invoice status").WithField("status")
	}
	policy := s.policy.Get()
	now := s.clock.Now()

	var updated *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrInvoiceNotFound
		}
		if err := p.RequireClient(authz.CapInvoiceEdit, inv.ParentAccountID, inv.ClientAccountID); err != nil {
			return err
		}
		if !domain.CanTransition(inv.Status, target) {
			return domain.ErrInvalidTransition.WithMessage("cannot move invoice from %s to %s", inv.Status, target)
		}

		from := inv.Status
		fields := map[string]any{"status": target, "updated_at": now}
		switch target {
		case domain.StatusIssued:
			due := now.AddDate(0, 0, policy.PaymentTermsDays)
			fields["issue_date"] = now
			fields["due_date"] = due
			inv.IssueDate, inv.DueDate = &now, &due
		case domain.StatusPaid:
			fields["paid_at"] = now
			inv.PaidAt = &now
		case domain.StatusCancelled:
			fields["cancelled_at"] = now
			inv.CancelledAt = &now
		}
		if err := s.repo.UpdateFields(ctx, tx, inv.ID, fields); err != nil {
			return err
		}
		inv.Status = target
		inv.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, p, auditdomain.Event{
			ParentAccountID: inv.ParentAccountID,
			Action:          auditdomain.ActionInvoiceStatus,
			TargetType:      "invoice",
			TargetID:        inv.ID,
			Metadata:        map[string]any{"from": string(from), "to": string(target)},
		}); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			s.log.Error("invoice status update failed", zap.Error(err))
			return nil, apperror.ErrStorageWrite.Wrap(err)
		}
		return nil, err
	}
	return updated, nil
}
