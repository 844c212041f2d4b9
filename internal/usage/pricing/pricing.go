// Package pricing decides what a ledger entry costs under the per-kind billing policy.
package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/warebill/internal/apperror"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/pkg/money"
)

type Outcome int

const (
	Billable Outcome = iota
	Hidden
	Unpriced
)

func (o Outcome) String() string {
	switch o {
	case Billable:
		return "billable"
	case Hidden:
		return "hidden"
	default:
		return "unpriced"
	}
}

const (
	ReasonMissingAmount   = "missing_amount"
	ReasonAmbiguousAmount = "ambiguous_amount"
	ReasonMissingService  = "missing_service"
	ReasonRateNotFound    = "rate_not_found"
	ReasonUnknownPolicy   = "unknown_policy"
)

var ErrPricingMisconfigured = apperror.New(apperror.CodePricingMisconfigured, "usage entry cannot be priced under the configured policy")

// Priced is the result for one entry. RateCents and AmountCents are set only when Billable.
type Priced struct {
	Entry       *domain.LedgerEntry
	Outcome     Outcome
	RateCents   int64
	AmountCents int64
	Reason      string
	Err         error
}

type Pricer struct {
	policy config.BillingPolicy
	rates  catalogdomain.Resolver
}

// New expects rates to be memoized for the unit of work.
func New(policy config.BillingPolicy, rates catalogdomain.Resolver) *Pricer {
	return &Pricer{policy: policy, rates: rates}
}

// Price returns an error only for storage failures. Policy problems come back as Unpriced.
func (p *Pricer) Price(ctx context.Context, e *domain.LedgerEntry) (Priced, error) {
	out := Priced{Entry: e}
	serviceID := strings.TrimSpace(e.ServiceID)
	key := catalogdomain.RateKey{
		ParentAccountID: e.ParentAccountID,
		ClientAccountID: e.ClientAccountID,
		WarehouseID:     e.WarehouseID,
		ServiceID:       serviceID,
	}

	switch p.policy.PricingFor(string(e.Kind)) {
	case config.PricingPrecomputed:
		if serviceID != "" {
			visible, err := p.rates.IsVisible(ctx, key)
			if err != nil {
				return out, err
			}
			if !visible {
				out.Outcome = Hidden
				return out, nil
			}
		}
		if e.AmountCents == nil {
			return unpriced(out, ReasonMissingAmount, ErrPricingMisconfigured.WithMessage("%s entry has no precomputed amount", e.Kind)), nil
		}
		out.Outcome = Billable
		out.AmountCents = *e.AmountCents
		out.RateCents = impliedRate(e)
		return out, nil

	case config.PricingCatalog:
		if serviceID == "" {
			return unpriced(out, ReasonMissingService, ErrPricingMisconfigured.WithMessage("%s entry has no service id", e.Kind)), nil
		}
		if e.AmountCents != nil {
			return unpriced(out, ReasonAmbiguousAmount, ErrPricingMisconfigured.WithMessage("%s entry carries an amount but is catalog priced", e.Kind)), nil
		}
		rate, err := p.rates.ResolveRate(ctx, key)
		if err != nil {
			if errors.Is(err, catalogdomain.ErrRateNotFound) {
				return unpriced(out, ReasonRateNotFound, err), nil
			}
			return out, err
		}
		if !rate.Visible {
			out.Outcome = Hidden
			return out, nil
		}
		out.Outcome = Billable
		out.RateCents = rate.RateCents
		out.AmountCents = money.AmountCents(e.Quantity, rate.RateCents)
		return out, nil
	}

	return unpriced(out, ReasonUnknownPolicy, ErrPricingMisconfigured.WithMessage("no pricing policy for %s", e.Kind)), nil
}

func unpriced(out Priced, reason string, err error) Priced {
	out.Outcome = Unpriced
	out.Reason = reason
	out.Err = err
	return out
}

// impliedRate prefers the feed's own unit rate, then amount/quantity.
func impliedRate(e *domain.LedgerEntry) int64 {
	if e.RateCents != nil {
		return *e.RateCents
	}
	if e.AmountCents == nil {
		return 0
	}
	if !e.Quantity.IsPositive() {
		return *e.AmountCents
	}
	return money.DivideCents(*e.AmountCents, e.Quantity)
}
