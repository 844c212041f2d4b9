package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/internal/invoice/domain"
	"github.com/smallbiznis/warebill/internal/testutil"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	detail := f.create(t)
	billing := testutil.ParentBilling(f.ten.Parent)

	issued, err := f.svc.TransitionStatus(f.ctx, billing, detail.ID, "issued")
	require.NoError(t, err)
	require.NotNil(t, issued.DueDate)
	assert.True(t, issued.DueDate.Equal(testutil.Epoch.AddDate(0, 0, 30)))

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.svc.TransitionStatus(f.ctx, billing, detail.ID, "overdue")
	require.NoError(t, err)

	paid, err := f.svc.TransitionStatus(f.ctx, billing, detail.ID, "paid")
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)

	_, err = f.svc.TransitionStatus(f.ctx, billing, detail.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := f.svc.LoadDetail(f.ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
}

func TestTransitionRejectsUnknownAndBackwards(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	detail := f.create(t)
	billing := testutil.ParentBilling(f.ten.Parent)

	_, err := f.svc.TransitionStatus(f.ctx, billing, detail.ID, "void")
	assert.Equal(t, apperror.CodeInvalidArgument, apperror.CodeOf(err))

	_, err = f.svc.TransitionStatus(f.ctx, billing, detail.ID, "paid")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.TransitionStatus(f.ctx, billing, f.node.Generate(), "issued")
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestCancelFreesPeriodButNotUsage(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	detail := f.create(t)
	billing := testutil.ParentBilling(f.ten.Parent)

	cancelled, err := f.svc.TransitionStatus(f.ctx, billing, detail.ID, "cancelled")
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.CreateInvoice(f.ctx, billing, f.request())
	assert.ErrorIs(t, err, domain.ErrNoPendingUsage, "the period key is free, the usage is not")

	testutil.SeedEntries(t, f.db,
		testutil.Entry(f.node, f.ten, usagedomain.KindExtra, "late", testutil.Day(2025, time.January, 30), "1", "extra.misc", testutil.Cents(900)),
	)
	id, err := f.svc.CreateInvoice(f.ctx, billing, f.request())
	require.NoError(t, err)
	rebuilt, err := f.svc.LoadDetail(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(900), rebuilt.SubtotalCents)
	assert.Equal(t, "INV-202501-000002", rebuilt.Number)
}

func TestGetInvoiceScopes(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	detail := f.create(t)

	_, err := f.svc.GetInvoice(f.ctx, testutil.ClientViewer(f.ten.Parent, f.ten.Client), detail.ID)
	require.NoError(t, err)

	_, err = f.svc.GetInvoice(f.ctx, testutil.ClientViewer(f.ten.Parent, f.node.Generate()), detail.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	_, err = f.svc.GetInvoice(f.ctx, testutil.ParentAdmin(f.ten.OtherParent), detail.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorizedTenant)

	res, err := f.svc.ListInvoices(f.ctx, testutil.ClientViewer(f.ten.Parent, f.ten.Client), domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)

	res, err = f.svc.ListInvoices(f.ctx, testutil.ParentAdmin(f.ten.OtherParent), domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestRenderPDF(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary(t)
	detail := f.create(t)

	doc, err := f.svc.RenderPDF(f.ctx, testutil.ParentBilling(f.ten.Parent), detail.ID)
	require.NoError(t, err)
	assert.Equal(t, "inv-202501-000001-blue-widgets-co.pdf", doc.Filename)
	assert.True(t, len(doc.Content) > 4 && string(doc.Content[:4]) == "%PDF")
}
