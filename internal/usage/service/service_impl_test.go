package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountrepo "github.com/smallbiznis/warebill/internal/account/repository"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/authz"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/warebill/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/warebill/internal/catalog/service"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/config"
	"github.com/smallbiznis/warebill/internal/testutil"
	"github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/smallbiznis/warebill/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
	ten  testutil.Tenancy
	ctx  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(testutil.Epoch)
	accounts := accountrepo.NewDirectory(db)
	rates := catalogservice.NewService(catalogservice.ServiceParam{
		DB: db, Log: testutil.Logger(), GenID: node, Clock: clk,
		Repo: catalogrepo.Provide(), Accounts: accounts,
	})
	svc := NewService(ServiceParam{
		DB:       db,
		Log:      testutil.Logger(),
		GenID:    node,
		Clock:    clk,
		Policy:   config.StaticPolicy(config.DefaultBillingPolicy()),
		Repo:     repository.Provide(),
		Accounts: accounts,
		Rates:    rates,
	})
	return &fixture{db: db, node: node, svc: svc, ten: testutil.SeedTenancy(t, db, node), ctx: context.Background()}
}

func (f *fixture) batch() domain.FeedBatch {
	return domain.FeedBatch{
		ClientAccountID: f.ten.Client,
		WarehouseID:     f.ten.Warehouse,
		Source:          "wms",
		Storage: []domain.StorageSnapshot{
			{SnapshotDate: "2025-01-15", VolumeCuft: decimal.NewFromInt(250), AmountCents: testutil.Cents(1000)},
		},
		Handling: []domain.HandlingUsage{
			{UsageDate: "2025-01-20", Tier: "b", Units: decimal.NewFromInt(30), TierRateCents: testutil.Cents(85)},
		},
		Outbound: []domain.OutboundActivity{
			{ActivityRef: "SHP-1", OccurredAt: time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC), ServiceCode: "outbound.pick", Quantity: decimal.NewFromInt(5)},
		},
	}
}

func (f *fixture) january() domain.UsageFilter {
	return domain.UsageFilter{ClientAccountID: f.ten.Client, Start: "2025-01-01", End: "2025-01-31"}
}

func TestRecordIsIdempotentPerRef(t *testing.T) {
	f := newFixture(t)
	producer := testutil.FeedProducer(f.ten.Parent)

	res, err := f.svc.Record(f.ctx, producer, f.batch())
	require.NoError(t, err)
	assert.Equal(t, domain.RecordResult{Inserted: 3, Duplicates: 0}, res)

	res, err = f.svc.Record(f.ctx, producer, f.batch())
	require.NoError(t, err)
	assert.Equal(t, domain.RecordResult{Inserted: 0, Duplicates: 3}, res)

	var count int64
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestRecordDedupesPerClientOnly(t *testing.T) {
	f := newFixture(t)
	order := func() []domain.OutboundActivity {
		return []domain.OutboundActivity{
			{ActivityRef: "ORD-1", OccurredAt: time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC), ServiceCode: "outbound.pick", Quantity: decimal.NewFromInt(1)},
		}
	}
	secondClient := testutil.AddClient(t, f.db, f.node, f.ten.Parent, "Red Gadgets Ltd")

	batches := []struct {
		producer authz.Principal
		batch    domain.FeedBatch
	}{
		{testutil.FeedProducer(f.ten.Parent), domain.FeedBatch{ClientAccountID: f.ten.Client, WarehouseID: f.ten.Warehouse, Source: "wms", Outbound: order()}},
		{testutil.FeedProducer(f.ten.Parent), domain.FeedBatch{ClientAccountID: secondClient, WarehouseID: f.ten.Warehouse, Source: "wms", Outbound: order()}},
		{testutil.FeedProducer(f.ten.OtherParent), domain.FeedBatch{ClientAccountID: f.ten.OtherClient, WarehouseID: f.ten.OtherWarehouse, Source: "wms", Outbound: order()}},
	}
	for i, b := range batches {
		res, err := f.svc.Record(f.ctx, b.producer, b.batch)
		require.NoError(t, err)
		assert.Equal(t, domain.RecordResult{Inserted: 1}, res, "batch %d", i)
	}

	res, err := f.svc.Record(f.ctx, batches[1].producer, batches[1].batch)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordResult{Duplicates: 1}, res, "a replay for the same client is still dropped")

	var perClient []struct {
		ClientAccountID snowflake.ID
		N               int64
	}
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).
		Select("client_account_id, count(*) AS n").
		Where("ref_id = ?", "ORD-1").
		Group("client_account_id").
		Scan(&perClient).Error)
	assert.Len(t, perClient, 3)
	for _, row := range perClient {
		assert.Equal(t, int64(1), row.N, "client %s", row.ClientAccountID)
	}
}

func TestRecordRejectsForeignWarehouse(t *testing.T) {
	f := newFixture(t)
	b := f.batch()
	b.WarehouseID = f.ten.OtherWarehouse
	_, err := f.svc.Record(f.ctx, testutil.FeedProducer(f.ten.Parent), b)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.Record(f.ctx, testutil.FeedProducer(f.ten.OtherParent), f.batch())
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)
}

func TestRecordRequiresWriteCapability(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(f.ctx, testutil.ClientViewer(f.ten.Parent, f.ten.Client), f.batch())
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)
}

func TestRecordRejectsEmptyAndInvalidBatches(t *testing.T) {
	f := newFixture(t)
	producer := testutil.FeedProducer(f.ten.Parent)

	_, err := f.svc.Record(f.ctx, producer, domain.FeedBatch{ClientAccountID: f.ten.Client, WarehouseID: f.ten.Warehouse})
	assert.ErrorIs(t, err, apperror.ErrMissingParameters)

	_, err = f.svc.Record(f.ctx, producer, domain.FeedBatch{WarehouseID: f.ten.Warehouse})
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeMissingParameters, ae.Code)
	assert.Equal(t, "client_account_id", ae.Field)

	b := f.batch()
	b.Storage[0].SnapshotDate = "15/01/2025"
	_, err = f.svc.Record(f.ctx, producer, b)
	ae, ok = apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidDateRange, ae.Code)
	assert.Equal(t, "storage[0].snapshot_date", ae.Field)

	var count int64
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count, "a rejected batch writes nothing")
}

func TestListUsagePagesCoverEveryRowOnce(t *testing.T) {
	f := newFixture(t)
	var entries []*domain.LedgerEntry
	for i := 0; i < 23; i++ {
		day := testutil.Day(2025, time.January, 1+i%28)
		entries = append(entries, testutil.Entry(f.node, f.ten, domain.KindExtra, fmt.Sprintf("ref-%02d", i), day, "1", "extra.misc", testutil.Cents(100)))
	}
	testutil.SeedEntries(t, f.db, entries...)

	seen := map[snowflake.ID]bool{}
	filter := f.january()
	filter.PageSize = 10
	for page := 1; page <= 3; page++ {
		filter.Page = page
		res, err := f.svc.ListUsage(f.ctx, testutil.ParentBilling(f.ten.Parent), filter)
		require.NoError(t, err)
		assert.Equal(t, int64(23), res.Total)
		for _, item := range res.Items {
			assert.False(t, seen[item.ID], "row repeated across pages")
			seen[item.ID] = true
		}
	}
	assert.Len(t, seen, 23)
}

func TestListUsageFilters(t *testing.T) {
	f := newFixture(t)
	invoiced := testutil.Entry(f.node, f.ten, domain.KindStorage, "s-1", testutil.Day(2025, time.January, 3), "10", "storage.cuft_day", testutil.Cents(40))
	invoiced.Status = domain.StatusInvoiced
	testutil.SeedEntries(t, f.db,
		invoiced,
		testutil.Entry(f.node, f.ten, domain.KindExtra, "100%_rush", testutil.Day(2025, time.January, 4), "1", "extra.misc", testutil.Cents(500)),
		testutil.Entry(f.node, f.ten, domain.KindExtra, "other", testutil.Day(2025, time.January, 31), "1", "extra.misc", testutil.Cents(500)),
		testutil.Entry(f.node, f.ten, domain.KindExtra, "feb", testutil.Day(2025, time.February, 1), "1", "extra.misc", testutil.Cents(500)),
	)
	billing := testutil.ParentBilling(f.ten.Parent)

	all, err := f.svc.ListUsage(f.ctx, billing, f.january())
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total, "end date is inclusive and february is excluded")

	filter := f.january()
	filter.Status = "pending"
	pending, err := f.svc.ListUsage(f.ctx, billing, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.Total)

	filter = f.january()
	filter.Q = "0%_R"
	found, err := f.svc.ListUsage(f.ctx, billing, filter)
	require.NoError(t, err)
	require.Equal(t, int64(1), found.Total)
	assert.Equal(t, "100%_rush", found.Items[0].RefID)

	filter = f.january()
	filter.Kind = "storage"
	storage, err := f.svc.ListUsage(f.ctx, billing, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), storage.Total)
}

func TestListUsageClientViewerIsPinned(t *testing.T) {
	f := newFixture(t)
	testutil.SeedEntries(t, f.db, testutil.Entry(f.node, f.ten, domain.KindExtra, "a", testutil.Day(2025, time.January, 4), "1", "", testutil.Cents(5)))
	viewer := testutil.ClientViewer(f.ten.Parent, f.ten.Client)

	filter := f.january()
	filter.ClientAccountID = 0
	res, err := f.svc.ListUsage(f.ctx, viewer, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)

	filter.ClientAccountID = f.ten.OtherClient
	_, err = f.svc.ListUsage(f.ctx, viewer, filter)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)
}

func TestBuildQueryValidation(t *testing.T) {
	p := testutil.ParentBilling(1)
	cases := []struct {
		name   string
		filter domain.UsageFilter
		code   apperror.Code
		field  string
	}{
		{"missing client", domain.UsageFilter{Start: "2025-01-01", End: "2025-01-31"}, apperror.CodeMissingParameters, "client_account_id"},
		{"missing start", domain.UsageFilter{ClientAccountID: 7, End: "2025-01-31"}, apperror.CodeMissingParameters, "start"},
		{"missing end", domain.UsageFilter{ClientAccountID: 7, Start: "2025-01-01"}, apperror.CodeMissingParameters, "end"},
		{"inverted", domain.UsageFilter{ClientAccountID: 7, Start: "2025-02-01", End: "2025-01-31"}, apperror.CodeInvalidDateRange, "end"},
		{"bad format", domain.UsageFilter{ClientAccountID: 7, Start: "01/01/2025", End: "2025-01-31"}, apperror.CodeInvalidDateRange, ""},
		{"bad status", domain.UsageFilter{ClientAccountID: 7, Start: "2025-01-01", End: "2025-01-31", Status: "void"}, apperror.CodeInvalidArgument, "status"},
		{"bad kind", domain.UsageFilter{ClientAccountID: 7, Start: "2025-01-01", End: "2025-01-31", Kind: "freight"}, apperror.CodeInvalidArgument, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildQuery(p, tc.filter)
			ae, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.field, ae.Field)
		})
	}

	q, err := BuildQuery(p, domain.UsageFilter{ClientAccountID: 7, Start: "2025-01-01", End: "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), q.ParentAccountID)
	assert.Equal(t, q.From.Add(24*time.Hour), q.Until)
}

func TestSummaryMatchesInvoicePricing(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCatalog(t, f.db, f.node, "outbound.pick", catalogdomain.GlobalWarehouse, 85)
	_, err := f.svc.Record(f.ctx, testutil.FeedProducer(f.ten.Parent), f.batch())
	require.NoError(t, err)

	hidden := testutil.Entry(f.node, f.ten, domain.KindOutbound, "SHP-2", testutil.Day(2025, time.January, 23), "1", "outbound.gift_wrap", nil)
	testutil.SeedEntries(t, f.db, hidden)

	sum, err := f.svc.Summary(f.ctx, testutil.ParentBilling(f.ten.Parent), f.january())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Entries)
	assert.Equal(t, 1, sum.Unpriced)
	assert.Equal(t, int64(1000), sum.ByKind[domain.KindStorage])
	assert.Equal(t, int64(2550), sum.ByKind[domain.KindHandling])
	assert.Equal(t, int64(425), sum.ByKind[domain.KindOutbound])
	assert.Equal(t, int64(3975), sum.TotalCents)
	assert.Equal(t, "39.75", sum.TotalUSD)
	assert.Equal(t, sum.TotalCents, sum.PendingCents)
}

func TestSummaryRespectsHiddenOverride(t *testing.T) {
	f := newFixture(t)
	testutil.SeedEntries(t, f.db, testutil.Entry(f.node, f.ten, domain.KindStorage, "s", testutil.Day(2025, time.January, 2), "10", "storage.cuft_day", testutil.Cents(70)))
	testutil.SeedOverride(t, f.db, f.node, catalogdomain.RateKey{
		ParentAccountID: f.ten.Parent, ClientAccountID: f.ten.Client, WarehouseID: f.ten.Warehouse, ServiceID: "storage.cuft_day",
	}, nil, false)

	sum, err := f.svc.Summary(f.ctx, authz.NewPrincipal("u", authz.RoleParentAdmin, f.ten.Parent, 0, authz.AllCapabilities), f.january())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Hidden)
	assert.Zero(t, sum.TotalCents)
}
