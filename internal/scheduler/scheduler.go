// Package scheduler runs the periodic invoice housekeeping jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/clock"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	obscontext "github.com/smallbiznis/warebill/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemSubject = "system:scheduler"

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	system     authz.Principal
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		system:     authz.NewPrincipal(systemSubject, authz.RolePlatformAdmin, 0, 0, authz.AllCapabilities),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx, runID := obscontext.EnsureCorrelationID(ctx, "")
	ctx = obscontext.WithPrincipal(ctx, "", systemSubject)

	log := s.log.With(zap.String("job", name), zap.String("run_id", runID))
	n, err := fn(ctx)
	log.Info("job finished",
		zap.Int("processed", n),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
	if err == nil {
		return nil
	}

	// treat deadline as soft-timeout, the next tick picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, "mark_overdue", s.MarkOverdueJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// MarkOverdueJob moves issued invoices past their due date to overdue.
// It goes through the invoice service so the change is locked and audited like a manual one.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) (int, error) {
	ids, err := s.fetchOverdue(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var (
		moved int
		errs  error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		_, err := s.invoiceSvc.TransitionStatus(ctx, s.system, id, string(invoicedomain.StatusOverdue))
		switch {
		case err == nil:
			moved++
		case apperror.CodeOf(err) == apperror.CodeInvalidStatusTransition:
			// paid or cancelled between the scan and the lock
		default:
			errs = errors.Join(errs, fmt.Errorf("invoice %s: %w", id, err))
		}
	}
	return moved, errs
}

func (s *Scheduler) fetchOverdue(ctx context.Context, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", invoicedomain.StatusIssued, now).
		Order("due_date, id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
