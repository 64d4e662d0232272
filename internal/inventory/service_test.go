package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/shared"
	"github.com/age-b2b/backoffice/internal/testing/memstore"
)

var staff = shared.StaffPrincipal(1)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	events []inventory.InboundRegisteredEvent
}

func (n *recordingNotifier) InboundRegistered(_ context.Context, evt inventory.InboundRegisteredEvent) {
	n.events = append(n.events, evt)
}

type fixture struct {
	store    *memstore.Store
	svc      *inventory.Service
	clock    *clock
	notifier *recordingNotifier
	product  catalog.Product
	today    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clk := &clock{now: time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	product := store.AddProduct(catalog.Product{
		Code:        "P-100",
		Name:        "Ginseng Serum",
		SupplyPrice: decimal.NewFromInt(1000),
		CostPrice:   decimal.NewFromInt(400),
	})
	svc := inventory.NewService(store.Inventory(), store, nil, notifier, inventory.ServiceConfig{Now: clk.Now})
	return &fixture{
		store:    store,
		svc:      svc,
		clock:    clk,
		notifier: notifier,
		product:  product,
		today:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) register(t *testing.T, qty int64, expiresInDays int) inventory.Lot {
	t.Helper()
	lot, err := f.svc.RegisterInbound(context.Background(), inventory.InboundInput{
		ProductID:  f.product.ID,
		Quantity:   qty,
		ExpiryDate: f.today.AddDate(0, 0, expiresInDays),
		Location:   "A-01",
		Actor:      staff,
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) deduct(ref string, qty int64) ([]inventory.Allocation, error) {
	var out []inventory.Allocation
	err := f.store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		out, err = f.svc.Allocator().Deduct(ctx, tx, ref, f.product.ID, qty)
		return err
	})
	return out, err
}

func (f *fixture) restore(ref string, qty int64) ([]inventory.Allocation, error) {
	var out []inventory.Allocation
	err := f.store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		out, err = f.svc.Allocator().Restore(ctx, tx, ref, f.product.ID, qty)
		return err
	})
	return out, err
}

func (f *fixture) quantity(t *testing.T, lotID int64) int64 {
	t.Helper()
	lot, err := f.store.Inventory().GetLot(context.Background(), lotID)
	require.NoError(t, err)
	return lot.Quantity
}

func (f *fixture) assertBalanced(t *testing.T, lotID int64) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), lotID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced, "lot %d: quantity %d, ledger %d", lotID, rec.Quantity, rec.LedgerSum)
}

func TestRegisterInboundGradesAndLogs(t *testing.T) {
	f := newFixture(t)
	lot := f.register(t, 10, 400)

	assert.Equal(t, int64(10), lot.Quantity)
	assert.Equal(t, inventory.GradeNormal, lot.Grade)
	assert.Regexp(t, `^LOT-20260301-[0-9A-F]{6}$`, lot.LotNumber)

	logs := f.store.Logs(lot.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, inventory.ReasonInbound, logs[0].Reason)
	assert.Equal(t, int64(10), logs[0].Change)
	assert.Equal(t, int64(10), logs[0].Snapshot)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, lot.ID, f.notifier.events[0].LotID)
}

func TestRegisterInboundRejectsUnknownProductAndClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterInbound(ctx, inventory.InboundInput{ProductID: 999, Quantity: 1, ExpiryDate: f.today, Actor: staff})
	require.ErrorIs(t, err, shared.ErrUnknownProduct)

	_, err = f.svc.RegisterInbound(ctx, inventory.InboundInput{ProductID: f.product.ID, Quantity: 1, ExpiryDate: f.today, Actor: shared.ClientPrincipal(5)})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.RegisterInbound(ctx, inventory.InboundInput{ProductID: f.product.ID, Quantity: 0, ExpiryDate: f.today, Actor: staff})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Empty(t, f.store.Lots(f.product.ID))
}

func TestCautionLotDeductionScenario(t *testing.T) {
	f := newFixture(t)
	lot := f.register(t, 10, 30)
	require.Equal(t, inventory.GradeCaution, lot.Grade)

	_, err := f.deduct("20260301-1001", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.quantity(t, lot.ID))

	logs := f.store.Logs(lot.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(-4), logs[1].Change)
	assert.Equal(t, int64(6), logs[1].Snapshot)
	assert.Equal(t, inventory.ReasonOutbound, logs[1].Reason)

	_, err = f.deduct("20260301-1002", 10)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, int64(6), f.quantity(t, lot.ID))
	assert.Len(t, f.store.Logs(lot.ID), 2)
	f.assertBalanced(t, lot.ID)
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 10, 200)

	_, _, err := f.svc.Adjust(ctx, inventory.AdjustInput{LotID: lot.ID, Change: -11, Reason: inventory.ReasonLost, Actor: staff})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, int64(10), f.quantity(t, lot.ID))
	assert.Len(t, f.store.Logs(lot.ID), 1)

	updated, entry, err := f.svc.Adjust(ctx, inventory.AdjustInput{LotID: lot.ID, Change: -10, Reason: inventory.ReasonDamaged, Note: "crushed box", Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.Quantity)
	assert.Equal(t, int64(0), entry.Snapshot)
	assert.Equal(t, "crushed box", entry.Note)
	f.assertBalanced(t, lot.ID)
}

func TestAdjustValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 10, 200)

	cases := []struct {
		name string
		in   inventory.AdjustInput
		want error
	}{
		{"inbound reserved", inventory.AdjustInput{LotID: lot.ID, Change: 1, Reason: inventory.ReasonInbound, Actor: staff}, shared.ErrInvalidInput},
		{"zero change", inventory.AdjustInput{LotID: lot.ID, Change: 0, Reason: inventory.ReasonOther, Actor: staff}, shared.ErrInvalidInput},
		{"unknown reason", inventory.AdjustInput{LotID: lot.ID, Change: 1, Reason: "GIFT", Actor: staff}, shared.ErrInvalidInput},
		{"unknown lot", inventory.AdjustInput{LotID: 404, Change: 1, Reason: inventory.ReasonCountMismatch, Actor: staff}, shared.ErrUnknownLot},
		{"client actor", inventory.AdjustInput{LotID: lot.ID, Change: 1, Reason: inventory.ReasonCountMismatch, Actor: shared.ClientPrincipal(3)}, shared.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.svc.Adjust(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(10), f.quantity(t, lot.ID))
}

func TestLedgerReconcilesAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 20, 120)

	_, _, err := f.svc.Adjust(ctx, inventory.AdjustInput{LotID: lot.ID, Change: 5, Reason: inventory.ReasonCountMismatch, Actor: staff})
	require.NoError(t, err)
	_, err = f.deduct("20260301-2001", 12)
	require.NoError(t, err)
	_, err = f.restore("20260301-2001", 4)
	require.NoError(t, err)
	qty := int64(30)
	_, err = f.svc.UpdateLot(ctx, inventory.UpdateLotInput{LotID: lot.ID, Quantity: &qty, Actor: staff})
	require.NoError(t, err)

	var sum int64
	for _, entry := range f.store.Logs(lot.ID) {
		sum += entry.Change
	}
	assert.Equal(t, int64(30), sum)
	assert.Equal(t, int64(30), f.quantity(t, lot.ID))
	f.assertBalanced(t, lot.ID)
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t)
	lot := f.register(t, 8, 120)
	f.store.SetLotQuantity(lot.ID, 9)

	rec, err := f.svc.Reconcile(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.False(t, rec.Balanced)
	assert.Equal(t, int64(9), rec.Quantity)
	assert.Equal(t, int64(8), rec.LedgerSum)
	assert.Equal(t, 1, rec.Entries)
}

func TestDeductConsumesEarliestExpiryFirst(t *testing.T) {
	f := newFixture(t)
	later := f.register(t, 8, 300)
	earlier := f.register(t, 5, 100)

	allocations, err := f.deduct("20260301-3001", 4)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, earlier.ID, allocations[0].LotID)
	assert.Equal(t, int64(1), f.quantity(t, earlier.ID))
	assert.Equal(t, int64(8), f.quantity(t, later.ID))

	allocations, err = f.deduct("20260301-3002", 3)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, earlier.ID, allocations[0].LotID)
	assert.Equal(t, int64(1), allocations[0].Quantity)
	assert.Equal(t, later.ID, allocations[1].LotID)
	assert.Equal(t, int64(2), allocations[1].Quantity)
	assert.Equal(t, int64(0), f.quantity(t, earlier.ID))
	assert.Equal(t, int64(6), f.quantity(t, later.ID))
}

func TestDeductIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, 3, 50)
	b := f.register(t, 2, 60)

	_, err := f.deduct("20260301-4001", 6)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, int64(3), f.quantity(t, a.ID))
	assert.Equal(t, int64(2), f.quantity(t, b.ID))
	assert.Empty(t, f.store.Allocations("20260301-4001"))
	assert.Len(t, f.store.Logs(a.ID), 1)
}

func TestRestoreMirrorsDeductionTrace(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, 5, 40)
	second := f.register(t, 10, 200)

	_, err := f.deduct("20260301-5001", 7)
	require.NoError(t, err)
	require.Len(t, f.store.Allocations("20260301-5001"), 2)

	credited, err := f.restore("20260301-5001", 7)
	require.NoError(t, err)
	require.Len(t, credited, 2)
	assert.Equal(t, int64(5), f.quantity(t, first.ID))
	assert.Equal(t, int64(10), f.quantity(t, second.ID))
	assert.Empty(t, f.store.Allocations("20260301-5001"))

	logs := f.store.Logs(second.ID)
	assert.Equal(t, inventory.ReasonReturn, logs[len(logs)-1].Reason)
	f.assertBalanced(t, first.ID)
	f.assertBalanced(t, second.ID)
}

func TestRestoreWithoutTraceCreditsNearestUpcomingLot(t *testing.T) {
	f := newFixture(t)
	expired := f.register(t, 2, -3)
	far := f.register(t, 2, 500)
	near := f.register(t, 2, 20)

	_, err := f.restore("legacy-order", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.quantity(t, expired.ID))
	assert.Equal(t, int64(2), f.quantity(t, far.ID))
	assert.Equal(t, int64(5), f.quantity(t, near.ID))
}

func TestRestoreCreatesReturnsLotWhenProductHasNone(t *testing.T) {
	f := newFixture(t)

	credited, err := f.restore("legacy-order", 3)
	require.NoError(t, err)
	require.Len(t, credited, 1)

	lots := f.store.Lots(f.product.ID)
	require.Len(t, lots, 1)
	assert.Equal(t, "RETURNS", lots[0].Location)
	assert.Equal(t, int64(3), lots[0].Quantity)
	assert.True(t, lots[0].ExpiryDate.Equal(f.today))
	assert.Equal(t, inventory.GradeCaution, lots[0].Grade)
	f.assertBalanced(t, lots[0].ID)
}

func TestUpdateLotRegradesOnExpiryEditOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 10, 400)

	qty := int64(7)
	updated, err := f.svc.UpdateLot(ctx, inventory.UpdateLotInput{LotID: lot.ID, Quantity: &qty, Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, inventory.GradeNormal, updated.Grade)
	logs := f.store.Logs(lot.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, inventory.ReasonManualAdjustment, logs[1].Reason)
	assert.Equal(t, int64(-3), logs[1].Change)

	expiry := f.today.AddDate(0, 0, -1)
	location := "B-07"
	updated, err = f.svc.UpdateLot(ctx, inventory.UpdateLotInput{LotID: lot.ID, ExpiryDate: &expiry, Location: &location, Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, inventory.GradeDisposal, updated.Grade)
	assert.Equal(t, "B-07", updated.Location)
	assert.Len(t, f.store.Logs(lot.ID), 2)
}

func TestUpdateLotLocationKeepsStoredGrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 10, 100)
	require.Equal(t, inventory.GradeManaged, lot.Grade)

	f.clock.Advance(20 * 24 * time.Hour)
	location := "C-12"
	updated, err := f.svc.UpdateLot(ctx, inventory.UpdateLotInput{LotID: lot.ID, Location: &location, Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, "C-12", updated.Location)
	assert.Equal(t, inventory.GradeManaged, updated.Grade)
	assert.True(t, updated.ExpiryDate.Equal(lot.ExpiryDate))

	stored, err := f.svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "C-12", stored.Location)
	assert.Equal(t, inventory.GradeManaged, stored.Grade)

	updated, err = f.svc.UpdateLot(ctx, inventory.UpdateLotInput{LotID: lot.ID, ExpiryDate: &lot.ExpiryDate, Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, inventory.GradeCaution, updated.Grade, "an expiry edit regrades for the current date")
	assert.Equal(t, "C-12", updated.Location)
	assert.Len(t, f.store.Logs(lot.ID), 1)
}

func TestDeleteLotPurgesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.register(t, 10, 100)
	_, err := f.deduct("20260301-6001", 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteLot(ctx, lot.ID, staff))
	assert.Empty(t, f.store.Logs(lot.ID))
	assert.Empty(t, f.store.Allocations("20260301-6001"))
	_, err = f.svc.GetLot(ctx, lot.ID)
	require.ErrorIs(t, err, shared.ErrUnknownLot)

	require.ErrorIs(t, f.svc.DeleteLot(ctx, lot.ID, staff), shared.ErrUnknownLot)
}

func TestRegradeAllFollowsTheClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	managed := f.register(t, 1, 100)
	normal := f.register(t, 1, 800)

	result, err := f.svc.RegradeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 0, result.Changed)

	f.clock.Advance(20 * 24 * time.Hour)
	result, err = f.svc.RegradeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)

	view, err := f.svc.GetLot(ctx, managed.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.GradeCaution, view.Grade)
	assert.Equal(t, 80, view.RemainingDays)

	view, err = f.svc.GetLot(ctx, normal.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.GradeNormal, view.Grade)
}

func TestListLotsBuildsViews(t *testing.T) {
	f := newFixture(t)
	f.register(t, 10, 30)
	f.register(t, 4, 400)

	views, page, err := f.svc.ListLots(context.Background(), inventory.LotFilter{ProductID: f.product.ID})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "P-100", views[0].ProductCode)
	assert.Equal(t, 30, views[0].RemainingDays)
	assert.True(t, decimal.NewFromInt(4000).Equal(views[0].AssetValue))

	views, _, err = f.svc.ListLots(context.Background(), inventory.LotFilter{Grade: inventory.GradeNormal})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(4), views[0].Quantity)

	_, _, err = f.svc.ListLots(context.Background(), inventory.LotFilter{Grade: "GOLD"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestListLotsMatchesKeyword(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddProduct(catalog.Product{Code: "M-200", Name: "Snail Mask", CostPrice: decimal.NewFromInt(100)})
	serum := f.register(t, 10, 30)
	mask, err := f.svc.RegisterInbound(context.Background(), inventory.InboundInput{
		ProductID:  other.ID,
		Quantity:   4,
		ExpiryDate: f.today.AddDate(0, 0, 60),
		Actor:      staff,
	})
	require.NoError(t, err)

	cases := map[string][]int64{
		"serum":         {serum.ID},
		"m-2":           {mask.ID},
		mask.LotNumber:  {mask.ID},
		"  SNAIL  ":     {mask.ID},
		"":              {serum.ID, mask.ID},
		"no such thing": nil,
	}
	for keyword, want := range cases {
		views, page, err := f.svc.ListLots(context.Background(), inventory.LotFilter{Keyword: keyword})
		require.NoError(t, err, keyword)
		var got []int64
		for _, v := range views {
			got = append(got, v.ID)
		}
		assert.ElementsMatch(t, want, got, keyword)
		assert.Equal(t, len(want), page.Total, keyword)
	}
}

func TestDeleteLotsStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, 10, 100)
	second := f.register(t, 5, 200)
	third := f.register(t, 2, 300)

	result, err := f.svc.DeleteLots(ctx, staff, []int64{first.ID, 404, second.ID, third.ID})
	var bulkErr *inventory.BulkError
	require.ErrorAs(t, err, &bulkErr)
	require.ErrorIs(t, err, shared.ErrUnknownLot)
	assert.Equal(t, []int64{first.ID}, bulkErr.Completed)
	assert.Equal(t, int64(404), bulkErr.FailedID)
	assert.Equal(t, []int64{second.ID, third.ID}, bulkErr.Remaining)
	assert.Equal(t, []int64{first.ID}, result.Deleted)

	_, err = f.svc.GetLot(ctx, first.ID)
	require.ErrorIs(t, err, shared.ErrUnknownLot)
	assert.Empty(t, f.store.Logs(first.ID))
	_, err = f.svc.GetLot(ctx, second.ID)
	require.NoError(t, err)

	result, err = f.svc.DeleteLots(ctx, staff, []int64{second.ID, third.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, third.ID}, result.Deleted)
	assert.Empty(t, f.store.Lots(f.product.ID))

	_, err = f.svc.DeleteLots(ctx, shared.ClientPrincipal(7), []int64{first.ID})
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.DeleteLots(ctx, staff, nil)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
