package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/audit/masking"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/clock"
	obscontext "github.com/smallbiznis/warebill/internal/observability/context"
	"github.com/smallbiznis/warebill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
	systemActor     = "system"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, conn *gorm.DB, p authz.Principal, ev domain.Event) error {
	if conn == nil {
		conn = s.db
	}
	action := strings.TrimSpace(ev.Action)
	if action == "" || ev.ParentAccountID == 0 {
		return apperror.ErrMissingParameters.WithField("action")
	}

	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		subject = systemActor
	}
	role := string(p.Role)
	if role == "" {
		role = systemActor
	}

	entry := domain.AuditLog{
		ID:              s.genID.Generate(),
		ParentAccountID: ev.ParentAccountID,
		ActorSubject:    subject,
		ActorRole:       role,
		Action:          action,
		TargetType:      strings.TrimSpace(ev.TargetType),
		TargetID:        ev.TargetID.String(),
		RequestID:       obscontext.RequestIDFromContext(ctx),
		CorrelationID:   obscontext.CorrelationIDFromContext(ctx),
		CreatedAt:       s.clock.Now(),
	}
	if meta := masking.MaskMetadata(ev.Metadata); len(meta) > 0 {
		entry.Metadata = datatypes.JSONMap(meta)
	}

	if err := s.repo.Insert(ctx, conn, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return apperror.ErrStorageWrite.Wrap(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, p authz.Principal, req domain.ListRequest) (pagination.Result[*domain.AuditLog], error) {
	parentID := p.ParentOr(req.ParentAccountID)
	if parentID == 0 {
		return pagination.Result[*domain.AuditLog]{}, apperror.ErrMissingParameters.WithField("parent_account_id")
	}
	if err := p.Require(authz.CapInvoiceRead, parentID); err != nil {
		return pagination.Result[*domain.AuditLog]{}, err
	}
	// client viewers only see their own invoices elsewhere; the tenant-wide trail is not theirs
	if p.Role == authz.RoleClientViewer {
		return pagination.Result[*domain.AuditLog]{}, apperror.ErrUnauthorizedTenant
	}

	filter := domain.ListFilter{ParentAccountID: parentID, Action: req.Action}
	if req.TargetID != 0 {
		filter.TargetID = req.TargetID.String()
	}
	page := pagination.Normalize(req.Page, req.PageSize, defaultPageSize, maxPageSize)

	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return pagination.Result[*domain.AuditLog]{}, err
	}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return pagination.Result[*domain.AuditLog]{}, err
	}
	return pagination.NewResult(items, total, page), nil
}
