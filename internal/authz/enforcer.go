package authz

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var defaultPolicies = map[Role][]Capability{
	RoleParentAdmin: {
		CapUsageRead, CapUsageWrite,
		CapInvoiceRead, CapInvoiceCreate, CapInvoiceEdit, CapInvoiceShare,
		CapRateRead, CapRateManage,
	},
	RoleParentBilling: {
		CapUsageRead,
		CapInvoiceRead, CapInvoiceCreate, CapInvoiceEdit, CapInvoiceShare,
		CapRateRead,
	},
	RoleClientViewer: {CapUsageRead, CapInvoiceRead},
	RoleFeedProducer: {CapUsageWrite},
}

// platform admins inherit everything parent admins can do
var defaultGroupings = [][2]Role{
	{RolePlatformAdmin, RoleParentAdmin},
}

func subjectFor(role Role) string {
	return "role:" + string(role)
}

// NewEnforcer persists policies through the gorm adapter and seeds missing defaults.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer seeds defaults without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(e *casbin.SyncedEnforcer) error {
	for role, caps := range defaultPolicies {
		for _, c := range caps {
			obj, act := c.split()
			has, err := e.HasPolicy(subjectFor(role), obj, act)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := e.AddPolicy(subjectFor(role), obj, act); err != nil {
				return fmt.Errorf("seed policy %s %s: %w", role, c, err)
			}
		}
	}
	for _, g := range defaultGroupings {
		has, err := e.HasGroupingPolicy(subjectFor(g[0]), subjectFor(g[1]))
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := e.AddGroupingPolicy(subjectFor(g[0]), subjectFor(g[1])); err != nil {
			return err
		}
	}
	return nil
}
