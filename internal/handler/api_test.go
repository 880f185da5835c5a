package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/venue-booking/internal/handler"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository/memory"
	"github.com/iliyamo/venue-booking/internal/router"
	"github.com/iliyamo/venue-booking/internal/service"
	"github.com/iliyamo/venue-booking/internal/upload"
	"github.com/iliyamo/venue-booking/internal/utils"
)

const secret = "test-secret"

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type api struct {
	e  *echo.Echo
	st *memory.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	st := memory.New()
	st.PutHall(model.Hall{
		ID:       "hall-1",
		OwnerID:  "owner-1",
		Name:     "Grand Hall",
		Managers: []model.HallManager{{ManagerID: "mgr-1"}},
	})
	hash, err := utils.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	st.PutUser(model.User{ID: "user-1", Email: "client@example.com", PasswordHash: hash, Role: model.RoleUser, IsActive: true})
	st.PutUser(model.User{ID: "user-9", Email: "gone@example.com", PasswordHash: hash, Role: model.RoleUser})

	proofs, err := upload.NewDiskStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	log := zap.NewNop()
	events := realtime.NewRouter(log)
	svc := service.New(service.Deps{
		Store: st, Halls: st, Users: st,
		Events:        events,
		Uploads:       proofs,
		Log:           log,
		PublicBaseURL: "https://venue.test",
	})

	e := echo.New()
	e.Validator = handler.NewValidator()
	router.Register(e, router.Handlers{
		Auth:          handler.NewAuthHandler(handler.AuthConfig{JWTSecret: secret, AccessTTLMin: 5, BcryptCost: bcrypt.MinCost}, st, log),
		Bookings:      handler.NewBookingHandler(svc, log),
		Deals:         handler.NewDealHandler(svc, log),
		Payments:      handler.NewPaymentHandler(svc, proofs, log),
		Conversations: handler.NewConversationHandler(svc, log),
		Realtime:      handler.NewRealtimeHandler(realtime.NewWSServer(events, svc.Conversations.AuthorizeSubscription, log), svc, secret, log),
	}, router.Limits{}, secret)
	return &api{e: e, st: st}
}

func bearerFor(t *testing.T, id string, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, string(role), 5)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *api) upload(t *testing.T, path, token string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		fw, err := mw.CreateFormFile("proof", "receipt.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "New@Example.com", "password": "longenough", "role": "agency",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "new@example.com", user["email"])
	assert.Equal(t, "agency", user["role"])

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "new@example.com", "password": "longenough",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "boss@example.com", "password": "longenough", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "client@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["access"].(map[string]any)["token"].(string)

	rec = a.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", decode(t, rec)["id"])

	for _, creds := range []map[string]string{
		{"email": "client@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "correct horse"},
		{"email": "gone@example.com", "password": "correct horse"},
	} {
		rec = a.do(t, http.MethodPost, "/v1/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, creds["email"])
	}
}

func TestAuthGates(t *testing.T) {
	a := newAPI(t)
	offer := map[string]any{"guest_email": "g@x.com", "booking_date": "2026-06-20"}

	rec := a.do(t, http.MethodPost, "/v1/halls/hall-1/offers", "", offer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/offers", "garbage", offer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/offers", bearerFor(t, "user-1", model.RoleUser), offer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/offers", bearerFor(t, "mgr-2", model.RoleManager), offer)
	assert.Equal(t, http.StatusForbidden, rec.Code, "role passes, hall assignment does not")

	// anonymous self-service is allowed, an invalid token is not
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", "garbage", offer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", "", offer)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", "", map[string]any{"booking_date": "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid booking_date", decode(t, rec)["error"])
	rec = a.do(t, http.MethodPost, "/v1/halls/hall-9/bookings", "", offer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDealRoutes(t *testing.T) {
	a := newAPI(t)
	owner := bearerFor(t, "owner-1", model.RoleHallOwner)

	rec := a.do(t, http.MethodPost, "/v1/halls/hall-1/offers", owner, map[string]any{
		"guest_name": "Guest", "guest_email": "g@x.com", "booking_date": "2026-06-20",
		"guest_count": 100, "total_amount": 400000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "token")
	id := decode(t, rec)["id"].(string)

	b, err := a.st.BookingByID(context.Background(), id)
	require.NoError(t, err)
	deal := "/v1/deals/" + b.Token()

	rec = a.do(t, http.MethodGet, deal, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom-offer", decode(t, rec)["status"])

	for i := 0; i < 2; i++ {
		rec = a.do(t, http.MethodPost, deal+"/confirm", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pending", decode(t, rec)["status"])
	}

	rec = a.do(t, http.MethodPost, deal+"/messages", "", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "client", decode(t, rec)["sender"])

	rec = a.do(t, http.MethodGet, "/v1/bookings/"+id+"/messages", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["unread"])

	rec = a.do(t, http.MethodGet, "/v1/deals/"+strings.Repeat("0", 64), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, deal+"/payment", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetStatusConflict(t *testing.T) {
	a := newAPI(t)
	client := bearerFor(t, "user-1", model.RoleUser)
	owner := bearerFor(t, "owner-1", model.RoleHallOwner)

	rec := a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", client, map[string]any{"booking_date": "2026-06-20T18:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	path := "/v1/bookings/" + id + "/status"
	rec = a.do(t, http.MethodPatch, path, owner, map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, path, owner, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPatch, path, owner, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/bookings?status=approved", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bookings"], 1)
	rec = a.do(t, http.MethodGet, "/v1/bookings", client, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentOverHTTP(t *testing.T) {
	a := newAPI(t)
	owner := bearerFor(t, "owner-1", model.RoleHallOwner)
	mgr := bearerFor(t, "mgr-1", model.RoleManager)
	client := bearerFor(t, "user-1", model.RoleUser)

	rec := a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", client, map[string]any{"booking_date": "2026-06-20"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/payment/number", owner, map[string]string{"payment_number": "0300"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/payment/number", mgr, map[string]string{"payment_number": "03001234567"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pay := decode(t, rec)
	assert.Equal(t, "awaiting_payment", pay["status"])
	payID := pay["id"].(string)

	rec = a.upload(t, "/v1/bookings/"+id+"/payment/proof", client, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.upload(t, "/v1/bookings/"+id+"/payment/proof", client, []byte("just text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	b, err := a.st.BookingByID(context.Background(), id)
	require.NoError(t, err)
	rec = a.upload(t, "/v1/deals/"+b.Token()+"/payment/proof", "", pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "awaiting_verification", decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/v1/payments/"+payID+"/proof", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, `attachment; filename="proof.png"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = a.do(t, http.MethodPost, "/v1/payments/"+payID+"/verify", mgr, map[string]string{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/payments/"+payID+"/verify", mgr, map[string]string{"status": "verified"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/v1/bookings/"+id+"/payment", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", decode(t, rec)["status"])
}

func TestUploadOnRejectedBookingConflicts(t *testing.T) {
	a := newAPI(t)
	owner := bearerFor(t, "owner-1", model.RoleHallOwner)
	client := bearerFor(t, "user-1", model.RoleUser)

	rec := a.do(t, http.MethodPost, "/v1/halls/hall-1/bookings", client, map[string]any{"booking_date": "2026-06-20"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)
	rec = a.do(t, http.MethodPatch, "/v1/bookings/"+id+"/status", owner, map[string]string{"status": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.upload(t, "/v1/bookings/"+id+"/payment/proof", client, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.upload(t, "/v1/bookings/"+id+"/payment/proof", client, pngBytes)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionsOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.st.PutUser(model.User{ID: "agency-1", Email: "agency@example.com", Role: model.RoleAgency, IsActive: true})
	client := bearerFor(t, "user-1", model.RoleUser)
	agency := bearerFor(t, "agency-1", model.RoleAgency)

	rec := a.do(t, http.MethodPost, "/v1/sessions", agency, map[string]string{"agency_id": "agency-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/sessions", client, map[string]string{"agency_id": "agency-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sid := decode(t, rec)["id"].(string)

	rec = a.do(t, http.MethodPost, "/v1/sessions/"+sid+"/messages", agency, map[string]any{
		"message_type":    "payment-confirmation",
		"content":         "received",
		"payment_details": map[string]int{"amount_paid": 100, "total_amount": 100},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/v1/sessions/"+sid+"/payment-status", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/v1/sessions/"+sid+"/unread", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["unread"])
}

func TestWebsocketNeedsCredentials(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/v1/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/ws?access_token=bad", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/ws?deal=unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
