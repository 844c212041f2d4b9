package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/account/repository"
	"github.com/smallbiznis/warebill/internal/apperror"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	auditrepo "github.com/smallbiznis/warebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/warebill/internal/audit/service"
	"github.com/smallbiznis/warebill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/warebill/internal/catalog/repository"
	"github.com/smallbiznis/warebill/internal/clock"
	"github.com/smallbiznis/warebill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  *Service
	ten  testutil.Tenancy
	ctx  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(testutil.Epoch)
	audit := auditservice.NewService(auditservice.ServiceParam{
		DB: db, Log: testutil.Logger(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	svc := NewService(ServiceParam{
		DB:       db,
		Log:      testutil.Logger(),
		GenID:    node,
		Clock:    clk,
		Repo:     catalogrepo.Provide(),
		Accounts: repository.NewDirectory(db),
		Audit:    audit,
	})
	ten := testutil.SeedTenancy(t, db, node)

	testutil.SeedCatalog(t, db, node, "outbound.pick", domain.GlobalWarehouse, 500)
	testutil.SeedCatalog(t, db, node, "outbound.pack", domain.GlobalWarehouse, 125)
	testutil.SeedCatalog(t, db, node, "outbound.pack", ten.Warehouse, 150)
	return &fixture{db: db, node: node, svc: svc, ten: ten, ctx: context.Background()}
}

func (f *fixture) key(serviceID string) domain.RateKey {
	return domain.RateKey{
		ParentAccountID: f.ten.Parent,
		ClientAccountID: f.ten.Client,
		WarehouseID:     f.ten.Warehouse,
		ServiceID:       serviceID,
	}
}

func TestResolveRateOverrideBeatsCatalog(t *testing.T) {
	f := newFixture(t)
	rate, err := f.svc.ResolveRate(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.Equal(t, domain.Rate{RateCents: 500, Visible: true, Source: domain.SourceGlobalCatalog}, rate)

	_, err = f.svc.UpsertOverride(f.ctx, testutil.ParentAdmin(f.ten.Parent), domain.OverrideInput{
		ParentAccountID:   f.ten.Parent,
		ClientAccountID:   f.ten.Client,
		WarehouseID:       f.ten.Warehouse,
		ServiceID:         "outbound.pick",
		OverrideRateCents: testutil.Cents(300),
	})
	require.NoError(t, err)

	rate, err = f.svc.ResolveRate(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), rate.RateCents)
	assert.Equal(t, domain.SourceOverride, rate.Source)
}

func TestResolveRateWarehouseEntryBeatsGlobal(t *testing.T) {
	f := newFixture(t)
	rate, err := f.svc.ResolveRate(f.ctx, f.key("outbound.pack"))
	require.NoError(t, err)
	assert.Equal(t, int64(150), rate.RateCents)
	assert.Equal(t, domain.SourceWarehouseCatalog, rate.Source)
}

func TestResolveRateHiddenOverride(t *testing.T) {
	f := newFixture(t)
	testutil.SeedOverride(t, f.db, f.node, f.key("outbound.pick"), nil, false)

	rate, err := f.svc.ResolveRate(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.False(t, rate.Visible)
	assert.Equal(t, domain.SourceHidden, rate.Source)

	visible, err := f.svc.IsVisible(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestResolveRateVisibleOverrideWithoutRateInherits(t *testing.T) {
	f := newFixture(t)
	testutil.SeedOverride(t, f.db, f.node, f.key("outbound.pick"), nil, true)

	rate, err := f.svc.ResolveRate(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), rate.RateCents)
	assert.Equal(t, domain.SourceGlobalCatalog, rate.Source)
}

func TestResolveRateNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ResolveRate(f.ctx, f.key("outbound.gift_wrap"))
	assert.ErrorIs(t, err, domain.ErrRateNotFound)
	assert.Equal(t, apperror.CodeRateNotFound, apperror.CodeOf(err))
}

func TestIsVisibleDefaultsTrueWithoutOverride(t *testing.T) {
	f := newFixture(t)
	visible, err := f.svc.IsVisible(f.ctx, f.key("storage.cuft_day"))
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestMemoCachesHitsAndMisses(t *testing.T) {
	f := newFixture(t)
	memo := domain.NewMemo(f.svc.ResolverFor(f.db))

	for i := 0; i < 3; i++ {
		rate, err := memo.ResolveRate(f.ctx, f.key("outbound.pick"))
		require.NoError(t, err)
		assert.Equal(t, int64(500), rate.RateCents)

		_, err = memo.ResolveRate(f.ctx, f.key("outbound.gift_wrap"))
		assert.ErrorIs(t, err, domain.ErrRateNotFound)
	}
	visible, err := memo.IsVisible(f.ctx, f.key("outbound.pick"))
	require.NoError(t, err)
	assert.True(t, visible)

	assert.Equal(t, 2, memo.Misses())
}

func TestResolveChecksTenancy(t *testing.T) {
	f := newFixture(t)
	foreign := f.key("outbound.pick")
	foreign.WarehouseID = f.ten.OtherWarehouse

	_, err := f.svc.Resolve(f.ctx, testutil.ParentAdmin(f.ten.Parent), foreign)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.Resolve(f.ctx, testutil.ParentAdmin(f.ten.OtherParent), f.key("outbound.pick"))
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.Resolve(f.ctx, testutil.ParentAdmin(f.ten.Parent), domain.RateKey{ParentAccountID: f.ten.Parent})
	assert.ErrorIs(t, err, apperror.ErrMissingParameters)

	rate, err := f.svc.Resolve(f.ctx, testutil.ClientViewer(f.ten.Parent, f.ten.Client), f.key("outbound.pick"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), rate.RateCents)
}

func TestUpsertOverrideUpdatesInPlaceAndAudits(t *testing.T) {
	f := newFixture(t)
	admin := testutil.ParentAdmin(f.ten.Parent)
	input := domain.OverrideInput{
		ParentAccountID:   f.ten.Parent,
		ClientAccountID:   f.ten.Client,
		WarehouseID:       f.ten.Warehouse,
		ServiceID:         "outbound.pick",
		OverrideRateCents: testutil.Cents(300),
	}
	first, err := f.svc.UpsertOverride(f.ctx, admin, input)
	require.NoError(t, err)

	hidden := false
	input.Visible = &hidden
	second, err := f.svc.UpsertOverride(f.ctx, admin, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.Visible)

	var count int64
	require.NoError(t, f.db.Model(&domain.ServiceOverride{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionServiceOverrideSet).Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestUpsertOverrideRequiresRateManage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpsertOverride(f.ctx, testutil.ParentBilling(f.ten.Parent), domain.OverrideInput{
		ParentAccountID: f.ten.Parent,
		ClientAccountID: f.ten.Client,
		WarehouseID:     f.ten.Warehouse,
		ServiceID:       "outbound.pick",
	})
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)
}

func TestCreateCatalogEntryScopes(t *testing.T) {
	f := newFixture(t)
	admin := testutil.ParentAdmin(f.ten.Parent)

	_, err := f.svc.CreateCatalogEntry(f.ctx, admin, domain.CatalogEntryInput{
		ServiceID: "outbound.label", Category: "outbound", Name: "Label", Unit: "label", DefaultRateCents: 35,
	})
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant, "only platform admins write global entries")

	entry, err := f.svc.CreateCatalogEntry(f.ctx, admin, domain.CatalogEntryInput{
		ParentAccountID: f.ten.Parent, WarehouseID: f.ten.Warehouse,
		ServiceID: "outbound.label", Category: "outbound", Name: "Label", Unit: "label", DefaultRateCents: 35,
	})
	require.NoError(t, err)
	assert.True(t, entry.Active)

	_, err = f.svc.CreateCatalogEntry(f.ctx, admin, domain.CatalogEntryInput{
		ParentAccountID: f.ten.Parent, WarehouseID: f.ten.Warehouse,
		ServiceID: "outbound.label", Category: "outbound", Name: "Label", Unit: "label", DefaultRateCents: 40,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	_, err = f.svc.CreateCatalogEntry(f.ctx, admin, domain.CatalogEntryInput{
		ParentAccountID: f.ten.Parent, WarehouseID: f.ten.OtherWarehouse,
		ServiceID: "outbound.label", Category: "outbound", Name: "Label", Unit: "label",
	})
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.CreateCatalogEntry(f.ctx, testutil.PlatformAdmin(), domain.CatalogEntryInput{
		ServiceID: "outbound.label", Category: "outbound", Name: "Label", Unit: "label", DefaultRateCents: 30,
	})
	require.NoError(t, err)
}

func TestListCatalogPrefersWarehouseEntry(t *testing.T) {
	f := newFixture(t)
	rows, err := f.svc.ListCatalog(f.ctx, testutil.ParentAdmin(f.ten.Parent), f.ten.Parent, f.ten.Warehouse)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byService := map[string]int64{}
	for _, r := range rows {
		byService[r.ServiceID] = r.DefaultRateCents
	}
	assert.Equal(t, map[string]int64{"outbound.pack": 150, "outbound.pick": 500}, byService)
}
