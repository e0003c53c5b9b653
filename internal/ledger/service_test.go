package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/db"
	"github.com/angelmondragon/splitpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

type recordingAnnouncer struct {
	mu       sync.Mutex
	messages []types.Message
}

func (r *recordingAnnouncer) Announce(_ context.Context, msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

type fixture struct {
	svc  Service
	conn *gorm.DB
	ann  *recordingAnnouncer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.Open(t))
}

func newFixtureOn(t *testing.T, conn *gorm.DB) fixture {
	t.Helper()
	ann := &recordingAnnouncer{}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Items:             items.NewRepository(conn),
		Sessions:          sessions.NewRepository(conn),
		TransactionRunner: db.NewFromConn(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Announcer:         ann,
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, ann: ann}
}

func (f fixture) session(t *testing.T, status enums.SessionStatus) uuid.UUID {
	t.Helper()
	row := models.Session{
		ID:             uuid.New(),
		Code:           strings.ToUpper(uuid.NewString()[:6]),
		RestaurantName: "Test",
		Currency:       enums.CurrencyUSD,
		TaxRate:        decimal.NewFromInt(16),
		TipRate:        decimal.NewFromInt(10),
		Status:         status,
	}
	require.NoError(t, f.conn.Create(&row).Error)
	return row.ID
}

func (f fixture) item(t *testing.T, sessionID uuid.UUID, price string, qty int) uuid.UUID {
	t.Helper()
	row := models.Item{
		ID:        uuid.New(),
		SessionID: sessionID,
		Name:      "item",
		Qty:       qty,
		UnitPrice: decimal.RequireFromString(price),
	}
	require.NoError(t, f.conn.Create(&row).Error)
	return row.ID
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestScenarioSplitItemInHalves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "20.00", 1)

	_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "X", Fraction: dec("0.5")})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "Y", Fraction: dec("0.5")})
	require.NoError(t, err)

	x, err := f.svc.GuestTotal(ctx, sessionID, "X")
	require.NoError(t, err)
	y, err := f.svc.GuestTotal(ctx, sessionID, "Y")
	require.NoError(t, err)
	assert.Equal(t, "10.00", x.Amount.StringFixed(2))
	assert.True(t, x.Amount.Equal(y.Amount))

	_, err = f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "Z", Fraction: dec("0.1")})
	require.ErrorIs(t, err, ErrOverAllocated)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, f.conn.Model(&models.Assignment{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestAssignRejectsInvalidFractions(t *testing.T) {
	f := newFixture(t)
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "5.00", 1)

	for _, raw := range []string{"0", "-0.1", "1.0001", "2", "0.1234567"} {
		_, err := f.svc.Assign(context.Background(), AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "g", Fraction: dec(raw)})
		require.ErrorIs(t, err, ErrInvalidFraction, "fraction %s", raw)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	}

	_, err := f.svc.Assign(context.Background(), AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "g", Fraction: dec("1")})
	require.NoError(t, err)
}

func TestAssignRejectsClosedSessionAndForeignItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closedID := f.session(t, enums.SessionStatusClosed)
	closedItem := f.item(t, closedID, "5.00", 1)

	_, err := f.svc.Assign(ctx, AssignInput{SessionID: closedID, ItemID: closedItem, GuestID: "g", Fraction: dec("1")})
	require.ErrorIs(t, err, sessions.ErrSessionClosed)

	openID := f.session(t, enums.SessionStatusOpen)
	otherID := f.session(t, enums.SessionStatusOpen)
	foreign := f.item(t, otherID, "5.00", 1)

	_, err = f.svc.Assign(ctx, AssignInput{SessionID: openID, ItemID: foreign, GuestID: "g", Fraction: dec("1")})
	require.ErrorIs(t, err, items.ErrItemNotFound)

	_, err = f.svc.Assign(ctx, AssignInput{SessionID: openID, ItemID: uuid.New(), GuestID: "g", Fraction: dec("1")})
	require.ErrorIs(t, err, items.ErrItemNotFound)
}

func TestAssignEmitsOutboxAndAnnounces(t *testing.T) {
	f := newFixture(t)
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "8.00", 1)

	assignment, err := f.svc.Assign(context.Background(), AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "ana", Fraction: dec("0.25")})
	require.NoError(t, err)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventAssignmentCreated).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, assignment.ID, events[0].AggregateID)

	require.Len(t, f.ann.messages, 1)
	msg := f.ann.messages[0]
	assert.Equal(t, enums.MessageTableUpdate, msg.Type)
	assert.Equal(t, sessionID.String(), msg.TableID)
	var body struct {
		Action string `json:"action"`
	}
	require.NoError(t, msg.DecodeData(&body))
	assert.Equal(t, "assignment_created", body.Action)
}

// SQLite runs on one connection, so writers queue on the pool rather than on
// the item row lock. The Postgres variant exercises the lock itself.
func TestConcurrentAssignNeverExceedsWholeItem(t *testing.T) {
	assertConcurrentAssignCapped(t, newFixture(t))
}

func TestConcurrentAssignNeverExceedsWholeItemPostgres(t *testing.T) {
	assertConcurrentAssignCapped(t, newFixtureOn(t, dbtest.OpenPostgres(t)))
}

func assertConcurrentAssignCapped(t *testing.T, f fixture) {
	t.Helper()
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "30.00", 1)

	const writers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.Assign(ctx, AssignInput{
				SessionID: sessionID,
				ItemID:    itemID,
				GuestID:   uuid.NewString(),
				Fraction:  dec("0.3"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("writer %d: unexpected error %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, writers-3, conflicts)

	rows, err := NewRepository(f.conn).EffectiveForItem(ctx, itemID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Fraction)
	}
	assert.True(t, sum.LessThanOrEqual(decimal.NewFromInt(1)), "sum %s", sum)
}

func TestGuestTotalIndependentOfAssignmentOrder(t *testing.T) {
	type claim struct {
		price    string
		fraction string
	}
	claims := []claim{
		{"10.00", "0.333333"},
		{"10.00", "0.333333"},
		{"10.00", "0.333333"},
		{"7.25", "0.5"},
		{"3.10", "1"},
	}

	totalFor := func(order []int) decimal.Decimal {
		f := newFixture(t)
		ctx := context.Background()
		sessionID := f.session(t, enums.SessionStatusOpen)
		ids := make([]uuid.UUID, len(claims))
		for i, c := range claims {
			ids[i] = f.item(t, sessionID, c.price, 1)
		}
		for _, idx := range order {
			_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: ids[idx], GuestID: "g", Fraction: dec(claims[idx].fraction)})
			require.NoError(t, err)
		}
		total, err := f.svc.GuestTotal(ctx, sessionID, "g")
		require.NoError(t, err)
		return total.Amount
	}

	forward := totalFor([]int{0, 1, 2, 3, 4})
	reverse := totalFor([]int{4, 3, 2, 1, 0})
	shuffled := totalFor([]int{2, 4, 0, 3, 1})

	// 9.99999 + 3.625 + 3.10 = 16.72499, rounded once.
	assert.Equal(t, "16.72", forward.StringFixed(2))
	assert.True(t, forward.Equal(reverse))
	assert.True(t, forward.Equal(shuffled))
}

func TestGuestTotalRoundsOnceHalfUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	a := f.item(t, sessionID, "0.01", 1)
	b := f.item(t, sessionID, "0.01", 1)

	_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: a, GuestID: "g", Fraction: dec("0.5")})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: b, GuestID: "g", Fraction: dec("0.25")})
	require.NoError(t, err)

	total, err := f.svc.GuestTotal(ctx, sessionID, "g")
	require.NoError(t, err)
	// 0.005 + 0.0025 = 0.0075 -> 0.01; per-line rounding would give 0.01 + 0.00.
	assert.Equal(t, "0.01", total.Amount.StringFixed(2))
	assert.Len(t, total.Lines, 2)
}

func TestGuestTotalTaxAndTip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "12.50", 2)

	_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "g", Fraction: dec("1")})
	require.NoError(t, err)

	total, err := f.svc.GuestTotal(ctx, sessionID, "g")
	require.NoError(t, err)
	assert.Equal(t, "25.00", total.Amount.StringFixed(2))
	assert.Equal(t, "4.00", total.Tax.StringFixed(2))
	assert.Equal(t, "2.50", total.SuggestedTip.StringFixed(2))
	assert.Equal(t, enums.CurrencyUSD, total.Currency)
}

func TestGuestTotalUnknownGuest(t *testing.T) {
	f := newFixture(t)
	sessionID := f.session(t, enums.SessionStatusOpen)

	_, err := f.svc.GuestTotal(context.Background(), sessionID, "nobody")
	require.ErrorIs(t, err, ErrGuestNotFound)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.GuestTotal(context.Background(), uuid.New(), "nobody")
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestSessionTotalReportsUnassignedRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	shared := f.item(t, sessionID, "20.00", 1)
	f.item(t, sessionID, "4.50", 2)

	_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: shared, GuestID: "X", Fraction: dec("0.5")})
	require.NoError(t, err)

	total, err := f.svc.SessionTotal(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "29.00", total.Total.StringFixed(2))
	assert.Equal(t, "10.00", total.Assigned.StringFixed(2))
	assert.Equal(t, "19.00", total.Unassigned.StringFixed(2))
}

func TestReassignReleasesPreviousFraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "20.00", 1)

	first, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "X", Fraction: dec("0.6")})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: "Y", Fraction: dec("0.4")})
	require.NoError(t, err)

	moved, err := f.svc.Reassign(ctx, ReassignInput{AssignmentID: first.ID, GuestID: "Z", Fraction: dec("0.6")})
	require.NoError(t, err)
	require.NotNil(t, moved.SupersedesID)
	assert.Equal(t, first.ID, *moved.SupersedesID)
	assert.Equal(t, itemID, moved.ItemID)

	_, err = f.svc.GuestTotal(ctx, sessionID, "X")
	require.ErrorIs(t, err, ErrGuestNotFound)
	z, err := f.svc.GuestTotal(ctx, sessionID, "Z")
	require.NoError(t, err)
	assert.Equal(t, "12.00", z.Amount.StringFixed(2))

	_, err = f.svc.Reassign(ctx, ReassignInput{AssignmentID: first.ID, GuestID: "W", Fraction: dec("0.1")})
	require.ErrorIs(t, err, ErrAlreadySuperseded)

	_, err = f.svc.Reassign(ctx, ReassignInput{AssignmentID: moved.ID, GuestID: "Z", Fraction: dec("0.7")})
	require.ErrorIs(t, err, ErrOverAllocated)

	var count int64
	require.NoError(t, f.conn.Model(&models.Assignment{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	listed, err := f.svc.List(ctx, sessionID, "")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReassignUnknownAssignment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reassign(context.Background(), ReassignInput{AssignmentID: uuid.New(), GuestID: "g", Fraction: dec("0.5")})
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestListFiltersByGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID := f.session(t, enums.SessionStatusOpen)
	itemID := f.item(t, sessionID, "9.00", 3)

	for _, guest := range []string{"a", "b", "a"} {
		_, err := f.svc.Assign(ctx, AssignInput{SessionID: sessionID, ItemID: itemID, GuestID: guest, Fraction: dec("0.2")})
		require.NoError(t, err)
	}

	rows, err := f.svc.List(ctx, sessionID, "a")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "a", row.GuestID)
	}
}
