package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// StorageSnapshot is one day of occupied volume, usually priced upstream.
type StorageSnapshot struct {
	RefID        string          `json:"ref_id"`
	SnapshotDate string          `json:"snapshot_date" validate:"required"`
	VolumeCuft   decimal.Decimal `json:"volume_cuft"`
	AmountCents  *int64          `json:"amount_cents"`
	ServiceID    string          `json:"service_id"`
}

type HandlingUsage struct {
	RefID         string          `json:"ref_id"`
	UsageDate     string          `json:"usage_date" validate:"required"`
	Tier          string          `json:"tier" validate:"required"`
	Units         decimal.Decimal `json:"units"`
	TierRateCents *int64          `json:"tier_rate_cents"`
	AmountCents   *int64          `json:"amount_cents"`
}

type OutboundActivity struct {
	ActivityRef string          `json:"activity_ref" validate:"required"`
	OccurredAt  time.Time       `json:"occurred_at" validate:"required"`
	ServiceCode string          `json:"service_code" validate:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	AmountCents *int64          `json:"amount_cents"`
}

// ExtraCharge is an ad-hoc fee entered in dollars.
type ExtraCharge struct {
	RefID       string          `json:"ref_id" validate:"required"`
	ChargedAt   string          `json:"charged_at" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	AmountUSD   string          `json:"amount_usd" validate:"required"`
	ServiceID   string          `json:"service_id"`
}

// FeedBatch carries rows from one producer for one client in one warehouse.
type FeedBatch struct {
	ParentAccountID snowflake.ID       `json:"parent_account_id"`
	ClientAccountID snowflake.ID       `json:"client_account_id" validate:"required"`
	WarehouseID     snowflake.ID       `json:"warehouse_id" validate:"required"`
	Source          string             `json:"source"`
	Storage         []StorageSnapshot  `json:"storage"`
	Handling        []HandlingUsage    `json:"handling"`
	Outbound        []OutboundActivity `json:"outbound"`
	Extras          []ExtraCharge      `json:"extras"`
}

func (b FeedBatch) Len() int {
	return len(b.Storage) + len(b.Handling) + len(b.Outbound) + len(b.Extras)
}

type RecordResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}
