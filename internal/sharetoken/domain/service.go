package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	"gorm.io/gorm"
)

const MaxValidDays = 365

type ShareLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service interface {
	// GenerateShareToken revokes the invoice's previous links and issues a new one.
	GenerateShareToken(ctx context.Context, p authz.Principal, invoiceID snowflake.ID, validForDays int) (*ShareLink, error)
	GetInvoiceByToken(ctx context.Context, token string) (*invoicedomain.InvoiceDetail, error)
	RenderPublicPDF(ctx context.Context, token string) (*invoicedomain.PDFDocument, error)
}

type Repository interface {
	RevokeActive(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, token *ShareToken) error
	FindActiveByHash(ctx context.Context, db *gorm.DB, hash string, now time.Time) (*ShareToken, error)
}

var (
	// ErrTokenNotFound covers unknown, revoked and expired tokens alike.
	ErrTokenNotFound       = apperror.ErrNotFound.WithMessage("invoice not found")
	ErrInvoiceNotShareable = apperror.New(apperror.CodeInvalidArgument, "cancelled invoices cannot be shared")
)
