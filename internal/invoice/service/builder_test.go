package service

import (
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/testutil"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoiceAggregatesAllKinds(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)

	detail := f.create(t)
	assert.Equal(t, domain.StatusDraft, detail.Status)
	assert.Equal(t, "INV-202501-000001", detail.Number)
	assert.Equal(t, int64(3975), detail.SubtotalCents)
	assert.Equal(t, int64(0), detail.TaxCents)
	assert.Equal(t, int64(3975), detail.TotalCents)
	require.Len(t, detail.LineItems, 3)

	var sum int64
	for _, item := range detail.LineItems {
		sum += item.AmountCents
		assert.False(t, item.AmountOverridden)
		require.NotNil(t, item.LedgerEntryID)
	}
	assert.Equal(t, detail.SubtotalCents, sum)

	byKind := map[string]int64{}
	for _, item := range detail.LineItems {
		byKind[item.Kind] = item.RateCents
	}
	assert.Equal(t, map[string]int64{"storage": 4, "handling": 85, "outbound": 85}, byKind)

	assert.Zero(t, f.pendingCount(t))
	var invoiced []usagedomain.LedgerEntry
	require.NoError(t, f.db.Find(&invoiced).Error)
	for _, e := range invoiced {
		require.NotNil(t, e.InvoiceID)
		assert.Equal(t, detail.ID, *e.InvoiceID)
	}

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionInvoiceCreated).Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateInvoiceAppliesRequestedTax(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	req := f.request()
	req.TaxCents = testutil.Cents(318)

	id, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), req)
	require.NoError(t, err)
	detail, err := f.svc.LoadDetail(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(318), detail.TaxCents)
	assert.Equal(t, int64(3975+318), detail.TotalCents)
}

func TestCreateInvoiceSecondRequestConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	f.create(t)

	_, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), f.request())
	assert.ErrorIs(t, err, domain.ErrInvoiceAlreadyExists)
}

func TestCreateInvoiceConcurrentRequestsYieldOneInvoice(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	billing := testutil.ParentBilling(f.ten.Parent)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateInvoice(f.ctx, billing, f.request())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperror.CodeOf(err) == apperror.CodeInvoiceAlreadyExists:
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	var invoices int64
	require.NoError(t, f.db.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Equal(t, int64(1), invoices)
	var items int64
	require.NoError(t, f.db.Model(&domain.LineItem{}).Count(&items).Error)
	assert.Equal(t, int64(3), items)
}

func TestCreateInvoiceHiddenUsageStaysPending(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	testutil.SeedOverride(t, f.db, f.node, catalogdomain.RateKey{
		ParentAccountID: f.ten.Parent,
		ClientAccountID: f.ten.Client,
		WarehouseID:     f.ten.Warehouse,
		ServiceID:       "storage.cuft_day",
	}, nil, false)

	detail := f.create(t)
	assert.Equal(t, int64(2975), detail.SubtotalCents)
	assert.Len(t, detail.LineItems, 2)
	assert.Equal(t, int64(1), f.pendingCount(t))
}

func TestCreateInvoiceSkipsUnpricedUsage(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindOutbound, "SHP-2", testutil.Day(2025, time.January, 23), "1", "outbound.gift_wrap", nil),
	)

	detail := f.create(t)
	assert.Equal(t, int64(3975), detail.SubtotalCents)
	assert.Equal(t, int64(1), f.pendingCount(t), "the entry without a rate waits for one")
}

func TestCreateInvoiceWithoutPendingUsage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), f.request())
	assert.ErrorIs(t, err, domain.ErrNoPendingUsage)

	var invoices int64
	require.NoError(t, f.db.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices, "the claimed period key is rolled back")
}

func TestCreateInvoiceOnlyUnpricedUsageIsNoPendingUsage(t *testing.T) {
	f := newFixture(t)
	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindOutbound, "SHP-2", testutil.Day(2025, time.January, 23), "1", "outbound.gift_wrap", nil),
	)
	_, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), f.request())
	assert.ErrorIs(t, err, domain.ErrNoPendingUsage)
	assert.Equal(t, int64(1), f.pendingCount(t))
}

func TestCreateInvoiceIgnoresUsageOutsidePeriod(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindExtra, "feb-1", testutil.Day(2025, time.February, 1), "1", "extra.misc", testutil.Cents(700)),
		testutil.Entry(f.node, f.ten, usagedomain.KindExtra, "jan-31", time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC), "1", "extra.misc", testutil.Cents(25)),
	)
	detail := f.create(t)
	assert.Equal(t, int64(4000), detail.SubtotalCents)
	assert.Equal(t, int64(1), f.pendingCount(t))
}

func TestCreateInvoiceAllWarehouses(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	second := testutil.AddWarehouse(t, f.db, f.node, f.ten.Parent, "WH-NORTH")
	other := testutil.Entry(f.node, f.ten, usagedomain.KindExtra, "n-1", testutil.Day(2025, time.January, 9), "1", "extra.misc", testutil.Cents(500))
	other.WarehouseID = second
	testutil.SeedEntries(t, f.db, other)

	req := f.request()
	req.WarehouseID = domain.AllWarehouses
	id, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), req)
	require.NoError(t, err)
	detail, err := f.svc.LoadDetail(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4475), detail.SubtotalCents)
	assert.Len(t, detail.LineItems, 4)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	billing := testutil.ParentBilling(f.ten.Parent)

	req := f.request()
	req.CurrencyCode = "usd"
	_, err := f.svc.CreateInvoice(f.ctx, billing, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	req = f.request()
	req.PeriodEnd = "2024-12-31"
	_, err = f.svc.CreateInvoice(f.ctx, billing, req)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidDateRange, ae.Code)
	assert.Equal(t, "period_end", ae.Field)

	req = f.request()
	req.PeriodStart = ""
	_, err = f.svc.CreateInvoice(f.ctx, billing, req)
	assert.ErrorIs(t, err, apperror.ErrMissingParameters)

	req = f.request()
	req.TaxCents = testutil.Cents(-1)
	_, err = f.svc.CreateInvoice(f.ctx, billing, req)
	assert.Equal(t, apperror.CodeInvalidArgument, apperror.CodeOf(err))
}

func TestCreateInvoiceTenancy(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)

	req := f.request()
	req.WarehouseID = f.ten.OtherWarehouse
	_, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), req)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.OtherParent), f.request())
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.CreateInvoice(f.ctx, testutil.ClientViewer(f.ten.Parent, f.ten.Client), f.request())
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)
}

func TestCreateInvoiceNumbersSequentiallyPerParent(t *testing.T) {
	policy := config.DefaultBillingPolicy()
	policy.InvoiceNumberFormat = "WB-{YY}-{SEQ}"
	f := newFixtureWithPolicy(t, policy)
	f.seedJanuary(t)
	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindExtra, "feb-1", testutil.Day(2025, time.February, 3), "1", "extra.misc", testutil.Cents(700)),
	)
	billing := testutil.ParentBilling(f.ten.Parent)

	first := f.create(t)
	req := f.request()
	req.PeriodStart, req.PeriodEnd = "2025-02-01", "2025-02-28"
	id, err := f.svc.CreateInvoice(f.ctx, billing, req)
	require.NoError(t, err)
	second, err := f.svc.GetInvoice(f.ctx, billing, id)
	require.NoError(t, err)

	assert.Equal(t, "WB-25-1", first.Number)
	assert.Equal(t, "WB-25-2", second.Number)
}

func TestCreateInvoiceIssuedSetsDueDate(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	req := f.request()
	req.Status = "issued"

	id, err := f.svc.CreateInvoice(f.ctx, testutil.ParentBilling(f.ten.Parent), req)
	require.NoError(t, err)
	detail, err := f.svc.LoadDetail(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, detail.Status)
	require.NotNil(t, detail.IssueDate)
	require.NotNil(t, detail.DueDate)
	assert.True(t, detail.DueDate.Equal(testutil.Epoch.AddDate(0, 0, 30)))
}
