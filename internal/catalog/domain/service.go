package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	"gorm.io/gorm"
)

// Resolver is the read path used inside already-authorized operations.
type Resolver interface {
	ResolveRate(ctx context.Context, key RateKey) (Rate, error)
	// IsVisible consults overrides only. Used for feeds that arrive already priced.
	IsVisible(ctx context.Context, key RateKey) (bool, error)
}

// ResolverFactory binds a Resolver to a connection or open transaction.
type ResolverFactory interface {
	ResolverFor(conn *gorm.DB) Resolver
}

type Service interface {
	Resolver
	ResolverFactory
	Resolve(ctx context.Context, p authz.Principal, key RateKey) (Rate, error)
	UpsertOverride(ctx context.Context, p authz.Principal, req OverrideInput) (*ServiceOverride, error)
	CreateCatalogEntry(ctx context.Context, p authz.Principal, req CatalogEntryInput) (*ServiceCatalogEntry, error)
	ListCatalog(ctx context.Context, p authz.Principal, parentID, warehouseID snowflake.ID) ([]*ServiceCatalogEntry, error)
}

type Repository interface {
	FindOverride(ctx context.Context, db *gorm.DB, key RateKey) (*ServiceOverride, error)
	FindActiveEntry(ctx context.Context, db *gorm.DB, serviceID string, warehouseID snowflake.ID) (*ServiceCatalogEntry, error)
	UpsertOverride(ctx context.Context, db *gorm.DB, o *ServiceOverride) error
	InsertEntry(ctx context.Context, db *gorm.DB, e *ServiceCatalogEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, warehouseID snowflake.ID) ([]*ServiceCatalogEntry, error)
}

type OverrideInput struct {
	ParentAccountID   snowflake.ID `json:"parent_account_id" validate:"required"`
	ClientAccountID   snowflake.ID `json:"client_account_id" validate:"required"`
	WarehouseID       snowflake.ID `json:"warehouse_id" validate:"required"`
	ServiceID         string       `json:"service_id" validate:"required"`
	OverrideRateCents *int64       `json:"override_rate_cents" validate:"omitempty,gte=0"`
	Visible           *bool        `json:"visible"`
}

type CatalogEntryInput struct {
	ParentAccountID  snowflake.ID `json:"parent_account_id"`
	WarehouseID      snowflake.ID `json:"warehouse_id"`
	ServiceID        string       `json:"service_id" validate:"required"`
	Category         string       `json:"category" validate:"required"`
	Name             string       `json:"name" validate:"required"`
	Unit             string       `json:"unit" validate:"required"`
	DefaultRateCents int64        `json:"default_rate_cents" validate:"gte=0"`
}

var (
	ErrRateNotFound   = apperror.New(apperror.CodeRateNotFound, "no rate is configured for a billable service")
	ErrDuplicateEntry = apperror.New(apperror.CodeInvalidArgument, "catalog entry already exists for this scope")
)
