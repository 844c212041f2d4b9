// Package testutil opens throwaway databases and seeds tenancy for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	"github.com/smallbiznis/warebill/internal/authz"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/migration"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch is the fixed "now" most tests start from.
var Epoch = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

var dbSeq atomic.Int64

// OpenDB returns a migrated in-memory sqlite database private to t.
// The pool is pinned to one connection so every statement sees the same memory database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func Logger() *zap.Logger { return zap.NewNop() }

// Tenancy is one parent with a client and a warehouse, plus a foreign parent
// with its own client and warehouse for cross-tenant checks.
type Tenancy struct {
	Parent    snowflake.ID
	Client    snowflake.ID
	Warehouse snowflake.ID

	OtherParent    snowflake.ID
	OtherClient    snowflake.ID
	OtherWarehouse snowflake.ID
}

func SeedTenancy(t *testing.T, db *gorm.DB, node *snowflake.Node) Tenancy {
	t.Helper()
	var ten Tenancy
	ten.Parent, ten.Client, ten.Warehouse = seedParent(t, db, node, "Acme Logistics", "Blue Widgets Co", "WH-EAST")
	ten.OtherParent, ten.OtherClient, ten.OtherWarehouse = seedParent(t, db, node, "Other 3PL", "Other Client", "WH-WEST")
	return ten
}

func seedParent(t *testing.T, db *gorm.DB, node *snowflake.Node, parentName, clientName, whCode string) (snowflake.ID, snowflake.ID, snowflake.ID) {
	t.Helper()
	parent := accountdomain.ParentAccount{ID: node.Generate(), Name: parentName, CreatedAt: Epoch}
	require.NoError(t, db.Create(&parent).Error)
	client := accountdomain.ClientAccount{ID: node.Generate(), ParentAccountID: parent.ID, Name: clientName, CreatedAt: Epoch}
	require.NoError(t, db.Create(&client).Error)
	wh := accountdomain.Warehouse{ID: node.Generate(), ParentAccountID: parent.ID, Code: whCode, Name: whCode + " Fulfillment", CreatedAt: Epoch}
	require.NoError(t, db.Create(&wh).Error)
	return parent.ID, client.ID, wh.ID
}

// AddClient creates another client account under parent.
func AddClient(t *testing.T, db *gorm.DB, node *snowflake.Node, parent snowflake.ID, name string) snowflake.ID {
	t.Helper()
	client := accountdomain.ClientAccount{ID: node.Generate(), ParentAccountID: parent, Name: name, CreatedAt: Epoch}
	require.NoError(t, db.Create(&client).Error)
	return client.ID
}

// AddWarehouse creates another warehouse under parent.
func AddWarehouse(t *testing.T, db *gorm.DB, node *snowflake.Node, parent snowflake.ID, code string) snowflake.ID {
	t.Helper()
	wh := accountdomain.Warehouse{ID: node.Generate(), ParentAccountID: parent, Code: code, Name: code, CreatedAt: Epoch}
	require.NoError(t, db.Create(&wh).Error)
	return wh.ID
}

func SeedCatalog(t *testing.T, db *gorm.DB, node *snowflake.Node, serviceID string, warehouseID snowflake.ID, rateCents int64) {
	t.Helper()
	entry := catalogdomain.ServiceCatalogEntry{
		ID:               node.Generate(),
		ServiceID:        serviceID,
		WarehouseID:      warehouseID,
		Category:         "outbound",
		Name:             serviceID,
		Unit:             "unit",
		DefaultRateCents: rateCents,
		Active:           true,
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
	require.NoError(t, db.Create(&entry).Error)
}

func SeedOverride(t *testing.T, db *gorm.DB, node *snowflake.Node, key catalogdomain.RateKey, rateCents *int64, visible bool) {
	t.Helper()
	row := catalogdomain.ServiceOverride{
		ID:                node.Generate(),
		ParentAccountID:   key.ParentAccountID,
		ClientAccountID:   key.ClientAccountID,
		WarehouseID:       key.WarehouseID,
		ServiceID:         key.ServiceID,
		OverrideRateCents: rateCents,
		Visible:           visible,
		CreatedAt:         Epoch,
		UpdatedAt:         Epoch,
	}
	require.NoError(t, db.Create(&row).Error)
}

// Entry builds a pending ledger row in ten's primary scope.
func Entry(node *snowflake.Node, ten Tenancy, kind usagedomain.Kind, ref string, occurred time.Time, qty string, serviceID string, amountCents *int64) *usagedomain.LedgerEntry {
	return &usagedomain.LedgerEntry{
		ID:              node.Generate(),
		OccurredAt:      occurred,
		ParentAccountID: ten.Parent,
		ClientAccountID: ten.Client,
		WarehouseID:     ten.Warehouse,
		Kind:            kind,
		Source:          "test",
		RefID:           ref,
		ServiceID:       serviceID,
		Description:     string(kind) + " " + ref,
		Quantity:        decimal.RequireFromString(qty),
		Unit:            "unit",
		AmountCents:     amountCents,
		Status:          usagedomain.StatusPending,
		CreatedAt:       Epoch,
		UpdatedAt:       Epoch,
	}
}

func SeedEntries(t *testing.T, db *gorm.DB, entries ...*usagedomain.LedgerEntry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, db.Create(e).Error)
	}
}

func Cents(v int64) *int64 { return &v }

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func ParentAdmin(parent snowflake.ID) authz.Principal {
	return authz.NewPrincipal("user:admin", authz.RoleParentAdmin, parent, 0, authz.AllCapabilities)
}

func ParentBilling(parent snowflake.ID) authz.Principal {
	return authz.NewPrincipal("user:billing", authz.RoleParentBilling, parent, 0, []authz.Capability{
		authz.CapUsageRead,
		authz.CapInvoiceRead, authz.CapInvoiceCreate, authz.CapInvoiceEdit, authz.CapInvoiceShare,
		authz.CapRateRead,
	})
}

func ClientViewer(parent, client snowflake.ID) authz.Principal {
	return authz.NewPrincipal("user:viewer", authz.RoleClientViewer, parent, client, []authz.Capability{
		authz.CapUsageRead, authz.CapInvoiceRead,
	})
}

func FeedProducer(parent snowflake.ID) authz.Principal {
	return authz.NewPrincipal("svc:feed", authz.RoleFeedProducer, parent, 0, []authz.Capability{authz.CapUsageWrite})
}

func PlatformAdmin() authz.Principal {
	return authz.NewPrincipal("user:platform", authz.RolePlatformAdmin, 0, 0, authz.AllCapabilities)
}
