package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountrepo "github.com/smallbiznis/warebill/internal/account/repository"
	auditrepo "github.com/smallbiznis/warebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/warebill/internal/audit/service"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/warebill/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/warebill/internal/catalog/service"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/invoice/repository"
	"github.com/smallbiznis/warebill/internal/testutil"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	usagerepo "github.com/smallbiznis/warebill/internal/usage/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   *Service
	ten   testutil.Tenancy
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, config.DefaultBillingPolicy())
}

func newFixtureWithPolicy(t *testing.T, policy config.BillingPolicy) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.OpenDB(t), policy)
}

func newFixtureOn(t *testing.T, db *gorm.DB, policy config.BillingPolicy) *fixture {
	t.Helper()
	node := testutil.Node(t)
	clk := clock.NewFakeClock(testutil.Epoch)
	accounts := accountrepo.NewDirectory(db)
	rates := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: testutil.Logger(), GenID: node, Clock: clk,
		Repo: catalogrepo.Provide(), Accounts: accounts,
	})
	audit := auditservice.NewService(auditservice.ServiceParam{
		DB: db, Log: testutil.Logger(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       testutil.Logger(),
		GenID:     node,
		Clock:     clk,
		Policy:    config.StaticPolicy(policy),
		Repo:      repository.Provide(),
		UsageRepo: usagerepo.Provide(),
		Accounts:  accounts,
		Rates:     rates,
		Audit:     audit,
	})
	return &fixture{
		db:    db,
		node:  node,
		clock: clk,
		svc:   svc,
		ten:   testutil.SeedTenancy(t, db, node),
		ctx:   context.Background(),
	}
}

// seedJanuary loads the canonical month: storage 10.00, handling 25.50, outbound 5 x 0.85.
func (f *fixture) seedJanuary(t *testing.T) {
	t.Helper()
	testutil.SeedCatalog(t, f.db, f.node, "outbound.pick", catalogdomain.GlobalWarehouse, 85)
	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindStorage, "st-15", testutil.Day(2025, time.January, 15), "250", "storage.cuft_day", testutil.Cents(1000)),
		testutil.Entry(f.node, f.ten, usagedomain.KindHandling, "hd-20", testutil.Day(2025, time.January, 20), "30", "handling.b", testutil.Cents(2550)),
		testutil.Entry(f.node, f.ten, usagedomain.KindOutbound, "SHP-1", time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC), "5", "outbound.pick", nil),
	)
}

func (f *fixture) request() domain.CreateInvoiceRequest {
	return domain.CreateInvoiceRequest{
		ClientAccountID: f.ten.Client,
		WarehouseID:     f.ten.Warehouse,
		PeriodStart:     "2025-01-01",
		PeriodEnd:       "2025-01-31",
		CurrencyCode:    "USD",
	}
}

func (f *fixture) create(t *testing.T) *domain.InvoiceDetail {
	t.Helper()
	billing := testutil.ParentBilling(f.ten.Parent)
	id, err := f.svc.CreateInvoice(f.ctx, billing, f.request())
	require.NoError(t, err)
	detail, err := f.svc.GetInvoice(f.ctx, billing, id)
	require.NoError(t, err)
	return detail
}

func (f *fixture) pendingCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&usagedomain.LedgerEntry{}).Where("status = ?", usagedomain.StatusPending).Count(&n).Error)
	return n
}
