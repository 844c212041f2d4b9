// Package ratelimit throttles the public share-link endpoints and feed ingestion.
package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/warebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyPublicInvoice = "warebill:rl:public:"
	keyFeed          = "warebill:rl:feed:"
)

// Policy is one named budget.
type Policy struct {
	Name   string
	Prefix string
	Rate   float64
	Burst  int
}

// Limiter asks redis first and falls back to a local bucket when redis is
// unset or erroring. A nil or disabled Limiter allows everything.
type Limiter struct {
	policy Policy
	remote *TokenBucket
	local  *LocalBucket
	log    *zap.Logger
}

func NewLimiter(policy Policy, remote *TokenBucket, log *zap.Logger) (*Limiter, error) {
	if policy.Rate <= 0 || policy.Burst <= 0 {
		return nil, errors.New("rate limit " + policy.Name + " must have positive rate and burst")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		policy: policy,
		remote: remote,
		local:  NewLocalBucket(),
		log:    log.Named("ratelimit").With(zap.String("policy", policy.Name)),
	}, nil
}

func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.policy.Name
}

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	full := l.policy.Prefix + key

	if l.remote != nil {
		d, err := l.remote.Allow(ctx, full, l.policy.Rate, l.policy.Burst)
		if err == nil {
			return d, nil
		}
		l.log.Warn("redis rate limit failed, using local bucket", zap.Error(err))
	}
	return l.local.Allow(full, l.policy.Rate, l.policy.Burst)
}

// Limiters groups the budgets the HTTP layer applies.
type Limiters struct {
	PublicInvoice *Limiter
	Feed          *Limiter
}

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// NewLimiters returns empty Limiters when rate limiting is disabled.
func NewLimiters(p Params) (*Limiters, error) {
	rl := p.Cfg.RateLimit
	if !rl.Enabled {
		return &Limiters{}, nil
	}

	var remote *TokenBucket
	if addr := strings.TrimSpace(rl.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(rl.RedisPassword),
			DB:       rl.RedisDB,
		})
		p.Lc.Append(fx.StopHook(client.Close))
		remote = NewTokenBucket(client)
	} else {
		p.Log.Warn("rate limiting without redis, budgets are per process")
	}

	public, err := NewLimiter(Policy{
		Name: "public_invoice", Prefix: keyPublicInvoice,
		Rate: rl.PublicInvoiceRate, Burst: rl.PublicInvoiceBurst,
	}, remote, p.Log)
	if err != nil {
		return nil, err
	}
	feed, err := NewLimiter(Policy{
		Name: "feed", Prefix: keyFeed,
		Rate: rl.FeedRate, Burst: rl.FeedBurst,
	}, remote, p.Log)
	if err != nil {
		return nil, err
	}
	return &Limiters{PublicInvoice: public, Feed: feed}, nil
}
