package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/pkg/money"
	"github.com/smallbiznis/warebill/pkg/period"
	"github.com/smallbiznis/warebill/pkg/validation"
)

const (
	DefaultStorageService = "storage.cuft_day"
	DefaultExtraService   = "extra.misc"
	DefaultSource         = "feed"
)

// Scope is the tenancy and producer every row in a batch is attached to.
type Scope struct {
	ParentAccountID snowflake.ID
	ClientAccountID snowflake.ID
	WarehouseID     snowflake.ID
	Source          string
}

// naturalRef keeps derived refs unique across clients and warehouses.
func (s Scope) naturalRef(parts ...string) string {
	return fmt.Sprintf("%s:%s:%s", s.ClientAccountID, s.WarehouseID, strings.Join(parts, ":"))
}

func NormalizeStorage(sc Scope, row domain.StorageSnapshot) (*domain.LedgerEntry, error) {
	if err := validation.Struct(row); err != nil {
		return nil, err
	}
	day, err := period.ParseDate(row.SnapshotDate)
	if err != nil {
		return nil, apperror.ErrInvalidDateRange.WithField("snapshot_date")
	}
	if row.VolumeCuft.IsNegative() {
		return nil, invalidArgument("volume_cuft", "volume_cuft must not be negative")
	}
	if err := nonNegative("amount_cents", row.AmountCents); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(row.RefID)
	if ref == "" {
		ref = sc.naturalRef(day.Format(period.DateLayout))
	}
	return &domain.LedgerEntry{
		OccurredAt:  day,
		Kind:        domain.KindStorage,
		RefID:       ref,
		ServiceID:   orDefault(row.ServiceID, DefaultStorageService),
		Description: fmt.Sprintf("Storage %s (%s cu ft)", day.Format(period.DateLayout), row.VolumeCuft.String()),
		Quantity:    row.VolumeCuft,
		Unit:        "cuft",
		AmountCents: row.AmountCents,
	}, nil
}

// NormalizeHandling derives round(units x tier rate) when the feed omits the amount.
func NormalizeHandling(sc Scope, row domain.HandlingUsage) (*domain.LedgerEntry, error) {
	if err := validation.Struct(row); err != nil {
		return nil, err
	}
	day, err := period.ParseDate(row.UsageDate)
	if err != nil {
		return nil, apperror.ErrInvalidDateRange.WithField("usage_date")
	}
	if row.Units.IsNegative() {
		return nil, invalidArgument("units", "units must not be negative")
	}
	if err := nonNegative("tier_rate_cents", row.TierRateCents); err != nil {
		return nil, err
	}
	if err := nonNegative("amount_cents", row.AmountCents); err != nil {
		return nil, err
	}

	tier := strings.ToLower(strings.TrimSpace(row.Tier))
	amount := row.AmountCents
	if amount == nil && row.TierRateCents != nil {
		derived := money.AmountCents(row.Units, *row.TierRateCents)
		amount = &derived
	}

	ref := strings.TrimSpace(row.RefID)
	if ref == "" {
		ref = sc.naturalRef(day.Format(period.DateLayout), tier)
	}
	return &domain.LedgerEntry{
		OccurredAt:  day,
		Kind:        domain.KindHandling,
		RefID:       ref,
		ServiceID:   "handling." + tier,
		Description: fmt.Sprintf("Handling %s, tier %s", day.Format(period.DateLayout), tier),
		Quantity:    row.Units,
		Unit:        "unit",
		RateCents:   row.TierRateCents,
		AmountCents: amount,
	}, nil
}

// NormalizeOutbound keeps the row as delivered; pricing is decided later.
func NormalizeOutbound(sc Scope, row domain.OutboundActivity) (*domain.LedgerEntry, error) {
	if err := validation.Struct(row); err != nil {
		return nil, err
	}
	qty := row.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	if qty.IsNegative() {
		return nil, invalidArgument("quantity", "quantity must not be negative")
	}
	if err := nonNegative("amount_cents", row.AmountCents); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(row.ServiceCode)
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		desc = fmt.Sprintf("Outbound %s (%s)", code, strings.TrimSpace(row.ActivityRef))
	}
	return &domain.LedgerEntry{
		OccurredAt:  row.OccurredAt.UTC(),
		Kind:        domain.KindOutbound,
		RefID:       strings.TrimSpace(row.ActivityRef),
		ServiceID:   code,
		Description: desc,
		Quantity:    qty,
		Unit:        "each",
		AmountCents: row.AmountCents,
	}, nil
}

// NormalizeExtra converts a dollar string into cents without rounding.
func NormalizeExtra(sc Scope, row domain.ExtraCharge) (*domain.LedgerEntry, error) {
	if err := validation.Struct(row); err != nil {
		return nil, err
	}
	day, err := period.ParseDate(row.ChargedAt)
	if err != nil {
		return nil, apperror.ErrInvalidDateRange.WithField("charged_at")
	}
	cents, err := money.DollarsToCents(row.AmountUSD)
	if err != nil || cents < 0 {
		return nil, domain.ErrInvalidAmount.WithField("amount_usd")
	}
	qty := row.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	if qty.IsNegative() {
		return nil, invalidArgument("quantity", "quantity must not be negative")
	}

	return &domain.LedgerEntry{
		OccurredAt:  day,
		Kind:        domain.KindExtra,
		RefID:       strings.TrimSpace(row.RefID),
		ServiceID:   orDefault(row.ServiceID, DefaultExtraService),
		Description: strings.TrimSpace(row.Description),
		Quantity:    qty,
		Unit:        "each",
		AmountCents: &cents,
	}, nil
}

// normalizeBatch applies the per-shape normalizers and attaches the scope.
// Errors are re-scoped to the offending row, e.g. "extras[2].amount_usd".
func normalizeBatch(sc Scope, b domain.FeedBatch) ([]*domain.LedgerEntry, error) {
	rows := make([]*domain.LedgerEntry, 0, b.Len())
	add := func(section string, i int, e *domain.LedgerEntry, err error) error {
		if err != nil {
			return rowError(section, i, err)
		}
		e.ParentAccountID = sc.ParentAccountID
		e.ClientAccountID = sc.ClientAccountID
		e.WarehouseID = sc.WarehouseID
		e.Source = sc.Source
		e.Status = domain.StatusPending
		rows = append(rows, e)
		return nil
	}
	for i, r := range b.Storage {
		e, err := NormalizeStorage(sc, r)
		if err := add("storage", i, e, err); err != nil {
			return nil, err
		}
	}
	for i, r := range b.Handling {
		e, err := NormalizeHandling(sc, r)
		if err := add("handling", i, e, err); err != nil {
			return nil, err
		}
	}
	for i, r := range b.Outbound {
		e, err := NormalizeOutbound(sc, r)
		if err := add("outbound", i, e, err); err != nil {
			return nil, err
		}
	}
	for i, r := range b.Extras {
		e, err := NormalizeExtra(sc, r)
		if err := add("extras", i, e, err); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func rowError(section string, i int, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		return err
	}
	field := fmt.Sprintf("%s[%d]", section, i)
	if ae.Field != "" {
		field += "." + ae.Field
	}
	return ae.WithField(field)
}

func nonNegative(field string, v *int64) error {
	if v != nil && *v < 0 {
		return domain.ErrInvalidAmount.WithField(field)
	}
	return nil
}

func invalidArgument(field, msg string) error {
	return apperror.New(apperror.CodeInvalidArgument, msg).WithField(field)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
