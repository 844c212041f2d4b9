package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountrepo "github.com/smallbiznis/warebill/internal/account/repository"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	auditrepo "github.com/smallbiznis/warebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/warebill/internal/audit/service"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/warebill/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/warebill/internal/catalog/service"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/warebill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/warebill/internal/invoice/service"
	"github.com/smallbiznis/warebill/internal/testutil"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	usagerepo "github.com/smallbiznis/warebill/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   *invoiceservice.Service
	sched *Scheduler
	ten   testutil.Tenancy
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
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
	svc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:        db,
		Log:       testutil.Logger(),
		GenID:     node,
		Clock:     clk,
		Policy:    config.StaticPolicy(config.DefaultBillingPolicy()),
		Repo:      invoicerepo.Provide(),
		UsageRepo: usagerepo.Provide(),
		Accounts:  accounts,
		Rates:     rates,
		Audit:     audit,
	})
	sched, err := New(Params{
		DB:         db,
		Log:        testutil.Logger(),
		Clock:      clk,
		InvoiceSvc: svc,
		Config:     Config{BatchSize: 10},
	})
	require.NoError(t, err)

	ten := testutil.SeedTenancy(t, db, node)
	testutil.SeedCatalog(t, db, node, "outbound.pick", catalogdomain.GlobalWarehouse, 85)
	return &harness{db: db, node: node, clock: clk, svc: svc, sched: sched, ten: ten}
}

func (h *harness) invoice(t *testing.T, year int, month time.Month, status string) snowflake.ID {
	t.Helper()
	start := testutil.Day(year, month, 1)
	end := start.AddDate(0, 1, -1)
	testutil.SeedEntries(t, h.db,
		testutil.Entry(h.node, h.ten, usagedomain.KindStorage, "st-"+start.Format("200601"), start.AddDate(0, 0, 9), "100", "storage.cuft_day", testutil.Cents(1000)),
	)
	id, err := h.svc.CreateInvoice(context.Background(), testutil.ParentBilling(h.ten.Parent), invoicedomain.CreateInvoiceRequest{
		ClientAccountID: h.ten.Client,
		WarehouseID:     h.ten.Warehouse,
		PeriodStart:     start.Format("2006-01-02"),
		PeriodEnd:       end.Format("2006-01-02"),
		CurrencyCode:    "USD",
		Status:          status,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) status(t *testing.T, id snowflake.ID) invoicedomain.Status {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, h.db.First(&inv, "id = ?", id).Error)
	return inv.Status
}

func TestMarkOverdueMovesPastDueInvoices(t *testing.T) {
	h := newHarness(t)
	issued := h.invoice(t, 2025, time.January, "issued")
	draft := h.invoice(t, 2024, time.December, "")

	n, err := h.sched.MarkOverdueJob(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due yet")
	assert.Equal(t, invoicedomain.StatusIssued, h.status(t, issued))

	h.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.Equal(t, invoicedomain.StatusOverdue, h.status(t, issued))
	assert.Equal(t, invoicedomain.StatusDraft, h.status(t, draft))

	n, err = h.sched.MarkOverdueJob(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var logs []auditdomain.AuditLog
	require.NoError(t, h.db.Where("action = ?", auditdomain.ActionInvoiceStatus).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, systemSubject, logs[0].ActorSubject)
	assert.Equal(t, issued.String(), logs[0].TargetID)
	assert.Equal(t, "overdue", logs[0].Metadata["to"])
}

func TestMarkOverdueSkipsPaid(t *testing.T) {
	h := newHarness(t)
	id := h.invoice(t, 2025, time.January, "issued")
	_, err := h.svc.TransitionStatus(context.Background(), testutil.ParentBilling(h.ten.Parent), id, "paid")
	require.NoError(t, err)

	h.clock.Advance(60 * 24 * time.Hour)
	n, err := h.sched.MarkOverdueJob(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, invoicedomain.StatusPaid, h.status(t, id))
}

func TestMarkOverdueHonoursBatchSize(t *testing.T) {
	h := newHarness(t)
	h.sched.cfg.BatchSize = 1
	first := h.invoice(t, 2025, time.January, "issued")
	second := h.invoice(t, 2024, time.December, "issued")

	h.clock.Advance(31 * 24 * time.Hour)
	n, err := h.sched.MarkOverdueJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.sched.MarkOverdueJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, invoicedomain.StatusOverdue, h.status(t, first))
	assert.Equal(t, invoicedomain.StatusOverdue, h.status(t, second))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProvideConfig(t *testing.T) {
	cfg := ProvideConfig(config.Config{SchedulerEnabled: true, SchedulerIntervalSeconds: 60})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)

	cfg = ProvideConfig(config.Config{})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
}
