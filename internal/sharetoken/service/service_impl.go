package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/warebill/internal/observability/metrics"
	"github.com/smallbiznis/warebill/internal/sharetoken/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenBytes = 32

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   config.PolicySource
	Repo     domain.Repository
	Invoices invoicedomain.Reader
	Audit    auditdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	baseURL  string
	genID    *snowflake.Node
	clock    clock.Clock
	policy   config.PolicySource
	repo     domain.Repository
	invoices invoicedomain.Reader
	audit    auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sharetoken.service"),
		baseURL:  strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		invoices: p.Invoices,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

func (s *Service) GenerateShareToken(ctx context.Context, p authz.Principal, invoiceID snowflake.ID, validForDays int) (*domain.ShareLink, error) {
	if invoiceID == 0 {
		return nil, apperror.ErrMissingParameters.WithField("invoice_id")
	}
	detail, err := s.invoices.LoadDetail(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := p.RequireClient(authz.CapInvoiceShare, detail.ParentAccountID, detail.ClientAccountID); err != nil {
		return nil, err
	}
	if detail.Status == invoicedomain.StatusCancelled {
		return nil, domain.ErrInvoiceNotShareable
	}

	if validForDays <= 0 {
		validForDays = s.policy.Get().ShareTokenValidDays
	}
	if validForDays > domain.MaxValidDays {
		validForDays = domain.MaxValidDays
	}

	raw, err := newToken()
	if err != nil {
		return nil, apperror.New(apperror.CodeInternal, "token generation failed").Wrap(err)
	}
	now := s.clock.Now()
	row := &domain.ShareToken{
		ID:              s.genID.Generate(),
		InvoiceID:       detail.ID,
		ParentAccountID: detail.ParentAccountID,
		TokenHash:       HashToken(raw),
		ExpiresAt:       now.AddDate(0, 0, validForDays),
		CreatedBy:       p.Subject,
		CreatedAt:       now,
	}

	var revoked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.RevokeActive(ctx, tx, detail.ID, now)
		if err != nil {
			return err
		}
		revoked = n
		if err := s.repo.Insert(ctx, tx, row); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, p, auditdomain.Event{
			ParentAccountID: detail.ParentAccountID,
			Action:          auditdomain.ActionShareTokenIssued,
			TargetType:      "invoice",
			TargetID:        detail.ID,
			Metadata: map[string]any{
				"token":      raw,
				"expires_at": row.ExpiresAt,
				"revoked":    n,
				"valid_days": validForDays,
			},
		})
	})
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			return nil, apperror.ErrStorageWrite.Wrap(err)
		}
		return nil, err
	}

	s.log.Info("share token issued",
		zap.String("invoice_id", detail.ID.String()),
		zap.Int64("revoked", revoked),
		zap.Time("expires_at", row.ExpiresAt),
	)
	return &domain.ShareLink{
		Token:     raw,
		URL:       s.baseURL + "/public/invoices/" + raw,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (s *Service) GetInvoiceByToken(ctx context.Context, token string) (*invoicedomain.InvoiceDetail, error) {
	row, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	detail, err := s.invoices.LoadDetail(ctx, row.InvoiceID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	// links issued before a cancellation die with the invoice
	if detail.Status == invoicedomain.StatusCancelled {
		return nil, domain.ErrTokenNotFound
	}
	return detail, nil
}

func (s *Service) RenderPublicPDF(ctx context.Context, token string) (*invoicedomain.PDFDocument, error) {
	detail, err := s.GetInvoiceByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.invoices.RenderDetail(ctx, detail)
}

// lookup gives one answer for every kind of miss so callers cannot probe token state.
func (s *Service) lookup(ctx context.Context, token string) (*domain.ShareToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.RecordShareTokenLookup(ctx, "miss")
		return nil, domain.ErrTokenNotFound
	}
	row, err := s.repo.FindActiveByHash(ctx, s.db, HashToken(token), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if row == nil {
		s.metrics.RecordShareTokenLookup(ctx, "miss")
		return nil, domain.ErrTokenNotFound
	}
	s.metrics.RecordShareTokenLookup(ctx, "hit")
	return row, nil
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
