package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/config"
)

// Claims is the bearer payload minted by the upstream auth service.
type Claims struct {
	jwt.RegisteredClaims
	Role            string `json:"role"`
	ParentAccountID string `json:"parent_account_id"`
	ClientAccountID string `json:"client_account_id,omitempty"`
}

// Resolver turns a bearer token into a Principal.
type Resolver struct {
	enforcer *casbin.SyncedEnforcer
	secret   []byte
	issuer   string
}

func NewResolver(cfg config.Config, enforcer *casbin.SyncedEnforcer) (*Resolver, error) {
	if strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return &Resolver{
		enforcer: enforcer,
		secret:   []byte(cfg.AuthJWTSecret),
		issuer:   cfg.AuthJWTIssuer,
	}, nil
}

// ResolveBearer verifies raw and builds the principal.
func (r *Resolver) ResolveBearer(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, apperror.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, apperror.ErrUnauthenticated.Wrap(err)
	}
	return r.FromClaims(claims)
}

// FromClaims validates claim shape and resolves capabilities through casbin.
func (r *Resolver) FromClaims(claims *Claims) (Principal, error) {
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Principal{}, apperror.ErrUnauthenticated.WithMessage("unknown role")
	}

	var parentID, clientID snowflake.ID
	if role != RolePlatformAdmin {
		id, err := snowflake.ParseString(strings.TrimSpace(claims.ParentAccountID))
		if err != nil || id == 0 {
			return Principal{}, apperror.ErrUnauthenticated.WithMessage("parent account claim missing")
		}
		parentID = id
	}
	if role == RoleClientViewer {
		id, err := snowflake.ParseString(strings.TrimSpace(claims.ClientAccountID))
		if err != nil || id == 0 {
			return Principal{}, apperror.ErrUnauthenticated.WithMessage("client account claim missing")
		}
		clientID = id
	}

	caps, err := r.capabilities(role)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(claims.Subject, role, parentID, clientID, caps), nil
}

func (r *Resolver) capabilities(role Role) ([]Capability, error) {
	out := make([]Capability, 0, len(AllCapabilities))
	for _, c := range AllCapabilities {
		obj, act := c.split()
		ok, err := r.enforcer.Enforce(subjectFor(role), obj, act)
		if err != nil {
			return nil, fmt.Errorf("enforce %s: %w", c, err)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
