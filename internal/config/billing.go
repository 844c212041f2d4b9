package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PricingPrecomputed = "precomputed"
	PricingCatalog     = "catalog"
)

// BillingPolicy holds operator-tunable billing rules loaded from billing.yml.
type BillingPolicy struct {
	DefaultPageSize      int               `mapstructure:"defaultPageSize"`
	MaxPageSize          int               `mapstructure:"maxPageSize"`
	InitialInvoiceStatus string            `mapstructure:"initialInvoiceStatus"`
	MutableStatuses      []string          `mapstructure:"mutableStatuses"`
	ShareTokenValidDays  int               `mapstructure:"shareTokenValidDays"`
	InvoiceNumberFormat  string            `mapstructure:"invoiceNumberFormat"`
	PaymentTermsDays     int               `mapstructure:"paymentTermsDays"`
	Pricing              map[string]string `mapstructure:"pricing"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		DefaultPageSize:      50,
		MaxPageSize:          500,
		InitialInvoiceStatus: "draft",
		MutableStatuses:      []string{"draft"},
		ShareTokenValidDays:  60,
		InvoiceNumberFormat:  "INV-{YYYY}{MM}-{SEQ6}",
		PaymentTermsDays:     30,
		Pricing: map[string]string{
			"storage":  PricingPrecomputed,
			"handling": PricingPrecomputed,
			"outbound": PricingCatalog,
			"extra":    PricingPrecomputed,
		},
	}
}

// PricingFor returns the configured policy for a usage kind, or "" when unset.
func (p BillingPolicy) PricingFor(kind string) string {
	return strings.ToLower(strings.TrimSpace(p.Pricing[strings.ToLower(kind)]))
}

// StatusMutable reports whether line items may be edited on an invoice in status.
func (p BillingPolicy) StatusMutable(status string) bool {
	for _, s := range p.MutableStatuses {
		if strings.EqualFold(strings.TrimSpace(s), status) {
			return true
		}
	}
	return false
}

// PolicySource is read by services on every call so reloads apply without restart.
type PolicySource interface {
	Get() BillingPolicy
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// StaticPolicy wraps a fixed policy, mostly for tests and one-shot tools.
func StaticPolicy(p BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewBillingPolicyHolder(log *zap.Logger) (*BillingPolicyHolder, error) {
	log = log.Named("config.billing")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/warebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WAREBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.defaultPageSize", defaults.DefaultPageSize)
	v.SetDefault("billing.maxPageSize", defaults.MaxPageSize)
	v.SetDefault("billing.initialInvoiceStatus", defaults.InitialInvoiceStatus)
	v.SetDefault("billing.mutableStatuses", defaults.MutableStatuses)
	v.SetDefault("billing.shareTokenValidDays", defaults.ShareTokenValidDays)
	v.SetDefault("billing.invoiceNumberFormat", defaults.InvoiceNumberFormat)
	v.SetDefault("billing.paymentTermsDays", defaults.PaymentTermsDays)
	v.SetDefault("billing.pricing", defaults.Pricing)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := StaticPolicy(policy)
	if !fileLoaded {
		log.Info("billing.yml not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("billing policy reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

func decodePolicy(v *viper.Viper) (BillingPolicy, error) {
	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return BillingPolicy{}, err
	}
	if err := ValidateBillingPolicy(policy); err != nil {
		return BillingPolicy{}, err
	}
	return policy, nil
}

func ValidateBillingPolicy(p BillingPolicy) error {
	if p.DefaultPageSize <= 0 || p.MaxPageSize <= 0 {
		return errors.New("billing page sizes must be positive")
	}
	if p.DefaultPageSize > p.MaxPageSize {
		return errors.New("billing.defaultPageSize cannot exceed billing.maxPageSize")
	}
	switch p.InitialInvoiceStatus {
	case "draft", "issued":
	default:
		return fmt.Errorf("billing.initialInvoiceStatus %q must be draft or issued", p.InitialInvoiceStatus)
	}
	if p.ShareTokenValidDays <= 0 {
		return errors.New("billing.shareTokenValidDays must be positive")
	}
	if strings.TrimSpace(p.InvoiceNumberFormat) == "" || !strings.Contains(p.InvoiceNumberFormat, "{SEQ") {
		return errors.New("billing.invoiceNumberFormat must contain a {SEQ} token")
	}
	if p.PaymentTermsDays < 0 {
		return errors.New("billing.paymentTermsDays cannot be negative")
	}
	for _, kind := range []string{"storage", "handling", "outbound", "extra"} {
		switch p.PricingFor(kind) {
		case PricingPrecomputed, PricingCatalog:
		default:
			return fmt.Errorf("billing.pricing.%s must be %s or %s", kind, PricingPrecomputed, PricingCatalog)
		}
	}
	return nil
}
