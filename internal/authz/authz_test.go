package authz

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	r, err := NewResolver(config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: "auth"}, enforcer)
	require.NoError(t, err)
	return r
}

func sign(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func claimsFor(role Role, parent, client string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user:1",
			Issuer:    "auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:            string(role),
		ParentAccountID: parent,
		ClientAccountID: client,
	}
}

func TestResolveBearerParentBilling(t *testing.T) {
	r := newTestResolver(t)
	p, err := r.ResolveBearer(sign(t, claimsFor(RoleParentBilling, "100", ""), testSecret))
	require.NoError(t, err)

	assert.Equal(t, RoleParentBilling, p.Role)
	assert.Equal(t, snowflake.ID(100), p.ParentAccountID)
	assert.True(t, p.Has(CapInvoiceCreate))
	assert.False(t, p.Has(CapRateManage))
	assert.False(t, p.Has(CapUsageWrite))
}

func TestPlatformAdminInheritsParentAdmin(t *testing.T) {
	r := newTestResolver(t)
	p, err := r.ResolveBearer(sign(t, claimsFor(RolePlatformAdmin, "", ""), testSecret))
	require.NoError(t, err)

	for _, c := range AllCapabilities {
		assert.True(t, p.Has(c), "platform admin should hold %s", c)
	}
	assert.True(t, p.CanAccessParent(999))
}

func TestResolveBearerRejectsBadSignature(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.ResolveBearer(sign(t, claimsFor(RoleParentAdmin, "100", ""), "other"))
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestResolveBearerRejectsExpired(t *testing.T) {
	r := newTestResolver(t)
	claims := claimsFor(RoleParentAdmin, "100", "")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := r.ResolveBearer(sign(t, claims, testSecret))
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestResolveBearerRejectsUnknownRole(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.ResolveBearer(sign(t, claimsFor(Role("superuser"), "100", ""), testSecret))
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestClientViewerRequiresClientClaim(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.ResolveBearer(sign(t, claimsFor(RoleClientViewer, "100", ""), testSecret))
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestPrincipalScopes(t *testing.T) {
	viewer := NewPrincipal("u", RoleClientViewer, 100, 7, []Capability{CapInvoiceRead})
	assert.NoError(t, viewer.RequireClient(CapInvoiceRead, 100, 7))
	assert.ErrorIs(t, viewer.RequireClient(CapInvoiceRead, 100, 8), apperror.ErrUnauthorizedTenant)
	assert.ErrorIs(t, viewer.RequireClient(CapInvoiceRead, 101, 7), apperror.ErrUnauthorizedTenant)
	assert.ErrorIs(t, viewer.Require(CapInvoiceEdit, 100), apperror.ErrUnauthorizedTenant)

	admin := NewPrincipal("u", RoleParentAdmin, 100, 0, []Capability{CapInvoiceEdit})
	assert.NoError(t, admin.RequireClient(CapInvoiceEdit, 100, 8))
	assert.ErrorIs(t, admin.Require(CapInvoiceEdit, 0), apperror.ErrUnauthorizedTenant)

	var zero Principal
	assert.False(t, zero.CanAccessParent(0))
}
