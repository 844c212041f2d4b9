// Package authz holds the typed authorization context every service call receives.
package authz

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/apperror"
)

type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RoleParentAdmin   Role = "parent_admin"
	RoleParentBilling Role = "parent_billing"
	RoleClientViewer  Role = "client_viewer"
	RoleFeedProducer  Role = "feed_producer"
)

var roles = map[Role]struct{}{
	RolePlatformAdmin: {},
	RoleParentAdmin:   {},
	RoleParentBilling: {},
	RoleClientViewer:  {},
	RoleFeedProducer:  {},
}

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := roles[role]
	return role, ok
}

// Capability is "<object>.<action>".
type Capability string

const (
	CapUsageRead     Capability = "usage.read"
	CapUsageWrite    Capability = "usage.write"
	CapInvoiceRead   Capability = "invoice.read"
	CapInvoiceCreate Capability = "invoice.create"
	CapInvoiceEdit   Capability = "invoice.edit"
	CapInvoiceShare  Capability = "invoice.share"
	CapRateRead      Capability = "rate.read"
	CapRateManage    Capability = "rate.manage"
)

var AllCapabilities = []Capability{
	CapUsageRead,
	CapUsageWrite,
	CapInvoiceRead,
	CapInvoiceCreate,
	CapInvoiceEdit,
	CapInvoiceShare,
	CapRateRead,
	CapRateManage,
}

func (c Capability) split() (string, string) {
	obj, act, _ := strings.Cut(string(c), ".")
	return obj, act
}

// Principal is resolved once per request. The zero value grants nothing.
type Principal struct {
	Subject         string
	Role            Role
	ParentAccountID snowflake.ID
	ClientAccountID snowflake.ID
	caps            map[Capability]struct{}
}

func NewPrincipal(subject string, role Role, parentID, clientID snowflake.ID, caps []Capability) Principal {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Principal{
		Subject:         subject,
		Role:            role,
		ParentAccountID: parentID,
		ClientAccountID: clientID,
		caps:            set,
	}
}

func (p Principal) Has(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

func (p Principal) IsPlatform() bool {
	return p.Role == RolePlatformAdmin
}

// CanAccessParent is true for platform principals and principals of that parent.
func (p Principal) CanAccessParent(parentID snowflake.ID) bool {
	if p.IsPlatform() {
		return true
	}
	return parentID != 0 && p.ParentAccountID == parentID
}

// CanAccessClient additionally pins client viewers to their own client.
func (p Principal) CanAccessClient(parentID, clientID snowflake.ID) bool {
	if !p.CanAccessParent(parentID) {
		return false
	}
	if p.Role == RoleClientViewer {
		return clientID != 0 && p.ClientAccountID == clientID
	}
	return true
}

// Require checks capability and parent scope.
func (p Principal) Require(c Capability, parentID snowflake.ID) error {
	if !p.Has(c) || !p.CanAccessParent(parentID) {
		return apperror.ErrUnauthorizedTenant
	}
	return nil
}

// RequireClient checks capability and client scope.
func (p Principal) RequireClient(c Capability, parentID, clientID snowflake.ID) error {
	if !p.Has(c) || !p.CanAccessClient(parentID, clientID) {
		return apperror.ErrUnauthorizedTenant
	}
	return nil
}

// ParentOr returns id, or the principal's own parent when id is zero.
func (p Principal) ParentOr(id snowflake.ID) snowflake.ID {
	if id != 0 {
		return id
	}
	return p.ParentAccountID
}

// ClientOr returns id, or the principal's own client when id is zero.
func (p Principal) ClientOr(id snowflake.ID) snowflake.ID {
	if id != 0 {
		return id
	}
	return p.ClientAccountID
}
