package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	"github.com/angelmondragon/splitpay-backend/internal/payments"
	"github.com/angelmondragon/splitpay-backend/internal/realtime"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/config"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func decodeData(t *testing.T, body []byte, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

type testSessionsService struct {
	createFn    func(ctx context.Context, input sessions.CreateSessionInput) (*models.Session, error)
	getFn       func(ctx context.Context, id uuid.UUID) (*models.Session, error)
	getByCodeFn func(ctx context.Context, code string) (*models.Session, error)
	closeFn     func(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

func (s *testSessionsService) Create(ctx context.Context, input sessions.CreateSessionInput) (*models.Session, error) {
	return s.createFn(ctx, input)
}

func (s *testSessionsService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.getFn(ctx, id)
}

func (s *testSessionsService) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	return s.getByCodeFn(ctx, code)
}

func (s *testSessionsService) Close(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.closeFn(ctx, id)
}

func sampleSession() *models.Session {
	return &models.Session{
		ID:             uuid.New(),
		Code:           "ABC234",
		RestaurantName: "Casa Lupita",
		Currency:       enums.CurrencyMXN,
		TaxRate:        decimal.RequireFromString("16"),
		TipRate:        decimal.RequireFromString("10"),
		Status:         enums.SessionStatusOpen,
		CreatedAt:      time.Now(),
	}
}

func TestCreateSessionSuccess(t *testing.T) {
	var got sessions.CreateSessionInput
	svc := &testSessionsService{
		createFn: func(_ context.Context, input sessions.CreateSessionInput) (*models.Session, error) {
			got = input
			return sampleSession(), nil
		},
	}

	body := `{"restaurant_name":"Casa Lupita","currency":"usd","tax_rate":"8.25"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateSession(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.Currency != enums.CurrencyUSD {
		t.Fatalf("expected currency normalized to USD, got %q", got.Currency)
	}
	if got.TaxRate == nil || !got.TaxRate.Equal(decimal.RequireFromString("8.25")) {
		t.Fatalf("unexpected tax rate %v", got.TaxRate)
	}
	if got.TipRate != nil {
		t.Fatalf("expected nil tip rate, got %v", got.TipRate)
	}

	var dto sessions.SessionDTO
	decodeData(t, resp.Body.Bytes(), &dto)
	if dto.Code != "ABC234" {
		t.Fatalf("unexpected code %q", dto.Code)
	}
}

func TestCreateSessionRejectsMissingName(t *testing.T) {
	svc := &testSessionsService{
		createFn: func(context.Context, sessions.CreateSessionInput) (*models.Session, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"currency":"MXN"}`))
	resp := httptest.NewRecorder()
	CreateSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionRejectsUnknownCurrency(t *testing.T) {
	svc := &testSessionsService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"restaurant_name":"X","currency":"ZZZ"}`))
	resp := httptest.NewRecorder()
	CreateSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSessionByCode(t *testing.T) {
	svc := &testSessionsService{
		getByCodeFn: func(_ context.Context, code string) (*models.Session, error) {
			if code != "abc234" {
				t.Fatalf("unexpected code %q", code)
			}
			return sampleSession(), nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?code=abc234", nil)
	resp := httptest.NewRecorder()
	GetSessionByCode(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestGetSessionByCodeMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	resp := httptest.NewRecorder()
	GetSessionByCode(&testSessionsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc := &testSessionsService{
		getFn: func(context.Context, uuid.UUID) (*models.Session, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		},
	}
	id := uuid.New()
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String(), nil), map[string]string{"sessionID": id.String()})
	resp := httptest.NewRecorder()
	GetSession(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCloseSessionInvalidID(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/close", nil), map[string]string{"sessionID": "nope"})
	resp := httptest.NewRecorder()
	CloseSession(&testSessionsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

type testItemsService struct {
	createFn func(ctx context.Context, input items.CreateItemInput) (*models.Item, error)
	listFn   func(ctx context.Context, sessionID uuid.UUID) ([]models.Item, error)
}

func (s *testItemsService) Create(ctx context.Context, input items.CreateItemInput) (*models.Item, error) {
	return s.createFn(ctx, input)
}

func (s *testItemsService) List(ctx context.Context, sessionID uuid.UUID) ([]models.Item, error) {
	return s.listFn(ctx, sessionID)
}

func TestCreateItemSuccess(t *testing.T) {
	sessionID := uuid.New()
	svc := &testItemsService{
		createFn: func(_ context.Context, input items.CreateItemInput) (*models.Item, error) {
			if input.SessionID != sessionID || input.Qty != 2 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &models.Item{ID: uuid.New(), SessionID: sessionID, Name: input.Name, Qty: input.Qty, UnitPrice: input.UnitPrice}, nil
		},
	}
	body := `{"session_id":"` + sessionID.String() + `","name":"Tacos","qty":2,"unit_price":"45.50"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateItem(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var out itemResponse
	decodeData(t, resp.Body.Bytes(), &out)
	if !out.LineTotal.Equal(decimal.RequireFromString("91")) {
		t.Fatalf("unexpected line total %s", out.LineTotal)
	}
}

func TestCreateItemRejectsZeroQty(t *testing.T) {
	body := `{"session_id":"` + uuid.NewString() + `","name":"Tacos","qty":0,"unit_price":"1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateItem(&testItemsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListItemsRequiresSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	resp := httptest.NewRecorder()
	ListItems(&testItemsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

type testLedgerService struct {
	assignFn   func(ctx context.Context, input ledger.AssignInput) (*models.Assignment, error)
	reassignFn func(ctx context.Context, input ledger.ReassignInput) (*models.Assignment, error)
	listFn     func(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error)
	guestFn    func(ctx context.Context, sessionID uuid.UUID, guestID string) (*ledger.GuestTotal, error)
	sessionFn  func(ctx context.Context, sessionID uuid.UUID) (*ledger.SessionTotal, error)
}

func (s *testLedgerService) Assign(ctx context.Context, input ledger.AssignInput) (*models.Assignment, error) {
	return s.assignFn(ctx, input)
}

func (s *testLedgerService) Reassign(ctx context.Context, input ledger.ReassignInput) (*models.Assignment, error) {
	return s.reassignFn(ctx, input)
}

func (s *testLedgerService) List(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error) {
	return s.listFn(ctx, sessionID, guestID)
}

func (s *testLedgerService) GuestTotal(ctx context.Context, sessionID uuid.UUID, guestID string) (*ledger.GuestTotal, error) {
	return s.guestFn(ctx, sessionID, guestID)
}

func (s *testLedgerService) SessionTotal(ctx context.Context, sessionID uuid.UUID) (*ledger.SessionTotal, error) {
	return s.sessionFn(ctx, sessionID)
}

func TestCreateAssignmentDefaultsToWholeItem(t *testing.T) {
	sessionID, itemID := uuid.New(), uuid.New()
	svc := &testLedgerService{
		assignFn: func(_ context.Context, input ledger.AssignInput) (*models.Assignment, error) {
			if !input.Fraction.Equal(decimal.NewFromInt(1)) {
				t.Fatalf("expected fraction 1, got %s", input.Fraction)
			}
			return &models.Assignment{ID: uuid.New(), SessionID: sessionID, ItemID: itemID, GuestID: input.GuestID, Fraction: input.Fraction}, nil
		},
	}
	body := `{"session_id":"` + sessionID.String() + `","item_id":"` + itemID.String() + `","guest_id":"g1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateAssignment(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateAssignmentOverAssignedConflict(t *testing.T) {
	svc := &testLedgerService{
		assignFn: func(context.Context, ledger.AssignInput) (*models.Assignment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "item over-assigned")
		},
	}
	body := `{"session_id":"` + uuid.NewString() + `","item_id":"` + uuid.NewString() + `","guest_id":"g1","fraction":"0.5"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateAssignment(svc, testLogger())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestReassignAssignment(t *testing.T) {
	assignmentID := uuid.New()
	svc := &testLedgerService{
		reassignFn: func(_ context.Context, input ledger.ReassignInput) (*models.Assignment, error) {
			if input.AssignmentID != assignmentID || input.GuestID != "g2" {
				t.Fatalf("unexpected input %+v", input)
			}
			return &models.Assignment{ID: uuid.New(), GuestID: "g2", Fraction: input.Fraction, SupersedesID: &assignmentID}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments/"+assignmentID.String()+"/reassign", strings.NewReader(`{"guest_id":"g2","fraction":"0.25"}`))
	req = withURLParams(req, map[string]string{"assignmentID": assignmentID.String()})
	resp := httptest.NewRecorder()
	ReassignAssignment(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var out ledger.AssignmentDTO
	decodeData(t, resp.Body.Bytes(), &out)
	if out.SupersedesID == nil || *out.SupersedesID != assignmentID {
		t.Fatalf("expected supersedes id %s, got %v", assignmentID, out.SupersedesID)
	}
}

func TestGuestTotalPassesGuest(t *testing.T) {
	sessionID := uuid.New()
	svc := &testLedgerService{
		guestFn: func(_ context.Context, sid uuid.UUID, guestID string) (*ledger.GuestTotal, error) {
			if sid != sessionID || guestID != "g1" {
				t.Fatalf("unexpected args %s %s", sid, guestID)
			}
			return &ledger.GuestTotal{SessionID: sid, GuestID: guestID, Currency: enums.CurrencyMXN, Amount: decimal.RequireFromString("116.00")}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withURLParams(req, map[string]string{"sessionID": sessionID.String(), "guestID": "g1"})
	resp := httptest.NewRecorder()
	GuestTotal(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var out ledger.GuestTotal
	decodeData(t, resp.Body.Bytes(), &out)
	if !out.Amount.Equal(decimal.RequireFromString("116")) {
		t.Fatalf("unexpected amount %s", out.Amount)
	}
}

type testPaymentsService struct {
	intentFn func(ctx context.Context, sessionID uuid.UUID, guestID string) (*payments.IntentResult, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}

func (s *testPaymentsService) CreateIntent(ctx context.Context, sessionID uuid.UUID, guestID string) (*payments.IntentResult, error) {
	return s.intentFn(ctx, sessionID, guestID)
}

func (s *testPaymentsService) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.getFn(ctx, id)
}

func (s *testPaymentsService) HandleProviderEvent(context.Context, []byte, string) (payments.Outcome, error) {
	return payments.OutcomeIgnored, nil
}

func TestCreatePaymentIntentSuccess(t *testing.T) {
	sessionID := uuid.New()
	svc := &testPaymentsService{
		intentFn: func(_ context.Context, sid uuid.UUID, guestID string) (*payments.IntentResult, error) {
			return &payments.IntentResult{
				PaymentID:    uuid.New(),
				ClientSecret: "pi_123_secret",
				Amount:       decimal.RequireFromString("116.00"),
				Currency:     enums.CurrencyMXN,
				Status:       enums.PaymentStatusPending,
			}, nil
		},
	}
	body := `{"session_id":"` + sessionID.String() + `","guest_id":"g1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreatePaymentIntent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var out payments.IntentResult
	decodeData(t, resp.Body.Bytes(), &out)
	if out.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected client secret %q", out.ClientSecret)
	}
}

func TestCreatePaymentIntentRejectsClientAmount(t *testing.T) {
	svc := &testPaymentsService{
		intentFn: func(context.Context, uuid.UUID, string) (*payments.IntentResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	body := `{"session_id":"` + uuid.NewString() + `","guest_id":"g1","amount":"1.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreatePaymentIntent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetPayment(t *testing.T) {
	paymentID := uuid.New()
	svc := &testPaymentsService{
		getFn: func(_ context.Context, id uuid.UUID) (*models.Payment, error) {
			return &models.Payment{ID: id, GuestID: "g1", Provider: enums.PaymentProviderStripe, Status: enums.PaymentStatusSucceeded, Currency: enums.CurrencyMXN}, nil
		},
	}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"paymentID": paymentID.String()})
	resp := httptest.NewRecorder()
	GetPayment(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var out paymentResponse
	decodeData(t, resp.Body.Bytes(), &out)
	if out.ID != paymentID || out.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("unexpected payment %+v", out)
	}
}

type recordingTableServer struct {
	tableID string
	who     realtime.Participant
}

func (s *recordingTableServer) ServeTable(w http.ResponseWriter, _ *http.Request, tableID string, who realtime.Participant) {
	s.tableID = tableID
	s.who = who
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestTableSocketParsesParticipant(t *testing.T) {
	hub := &recordingTableServer{}
	req := httptest.NewRequest(http.MethodGet, "/ws/tables/t1?guest_id=g1&name=Ana&role=waiter", nil)
	req = withURLParams(req, map[string]string{"tableID": "t1"})
	resp := httptest.NewRecorder()
	TableSocket(hub, testLogger())(resp, req)

	if hub.tableID != "t1" {
		t.Fatalf("unexpected table %q", hub.tableID)
	}
	if hub.who.GuestID != "g1" || hub.who.Name != "Ana" || hub.who.Role != enums.RoleWaiter {
		t.Fatalf("unexpected participant %+v", hub.who)
	}
}

func TestTableSocketRejectsUnknownRole(t *testing.T) {
	hub := &recordingTableServer{}
	req := httptest.NewRequest(http.MethodGet, "/ws/tables/t1?role=chef", nil)
	req = withURLParams(req, map[string]string{"tableID": "t1"})
	resp := httptest.NewRecorder()
	TableSocket(hub, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if hub.tableID != "" {
		t.Fatal("hub should not be reached")
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get(envHeader); got != "dev" {
		t.Fatalf("unexpected env header %q", got)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
