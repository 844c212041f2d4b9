package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// GlobalWarehouse marks a catalog entry that applies to every warehouse.
const GlobalWarehouse snowflake.ID = 0

// ServiceCatalogEntry is the default price for a billable event type.
type ServiceCatalogEntry struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ServiceID        string       `gorm:"size:191;not null;uniqueIndex:ux_catalog_service_scope,priority:1"`
	WarehouseID      snowflake.ID `gorm:"not null;uniqueIndex:ux_catalog_service_scope,priority:2"`
	Category         string       `gorm:"type:text;not null"`
	Name             string       `gorm:"type:text;not null"`
	Unit             string       `gorm:"type:text;not null"`
	DefaultRateCents int64        `gorm:"not null"`
	Active           bool         `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null"`
	UpdatedAt        time.Time    `gorm:"not null"`
}

func (ServiceCatalogEntry) TableName() string { return "service_catalog_entries" }

// ServiceOverride narrows a catalog entry for one client in one warehouse.
// No row means inherit the catalog rate and stay visible.
type ServiceOverride struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	ParentAccountID   snowflake.ID `gorm:"not null;uniqueIndex:ux_service_overrides_key,priority:1"`
	ClientAccountID   snowflake.ID `gorm:"not null;uniqueIndex:ux_service_overrides_key,priority:2"`
	WarehouseID       snowflake.ID `gorm:"not null;uniqueIndex:ux_service_overrides_key,priority:3"`
	ServiceID         string       `gorm:"size:191;not null;uniqueIndex:ux_service_overrides_key,priority:4"`
	OverrideRateCents *int64
	Visible           bool      `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (ServiceOverride) TableName() string { return "service_overrides" }

type RateKey struct {
	ParentAccountID snowflake.ID
	ClientAccountID snowflake.ID
	WarehouseID     snowflake.ID
	ServiceID       string
}

type RateSource string

const (
	SourceOverride         RateSource = "override"
	SourceWarehouseCatalog RateSource = "warehouse_catalog"
	SourceGlobalCatalog    RateSource = "global_catalog"
	SourceHidden           RateSource = "hidden"
)

// Rate is the effective price. RateCents is meaningless when Visible is false.
type Rate struct {
	RateCents int64      `json:"rate_cents"`
	Visible   bool       `json:"visible"`
	Source    RateSource `json:"source"`
}
