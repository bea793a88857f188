package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"badger/bakery-api/internal/handler"
	"badger/bakery-api/internal/model"
	"badger/bakery-api/internal/service"
	"badger/bakery-api/internal/service/ratelimit"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validToken = "ABC123"
	otherToken = "def456"
)

var start = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	orders   []model.Order
	inserts  int
	lists    int
	err      error
	panicked bool
}

func (s *fakeStore) Insert(_ context.Context, order model.ValidatedOrder) (model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.err != nil {
		return model.Receipt{}, s.err
	}
	q := order.Quantities
	o := model.Order{
		ID:           int64(len(s.orders) + 1),
		Username:     order.Username,
		NumMuffin:    q[0],
		NumDonut:     q[1],
		NumPie:       q[2],
		NumCupcake:   q[3],
		NumCroissant: q[4],
		PlacedOn:     start,
	}
	s.orders = append(s.orders, o)
	return model.Receipt{ID: o.ID, PlacedOn: o.PlacedOn}, nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.panicked {
		panic("store exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Order
	for i := len(s.orders) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.orders[i])
	}
	return out, nil
}

type countingLimiter struct {
	ratelimit.Limiter
	mu    sync.Mutex
	calls int
}

func (l *countingLimiter) Admit(ctx context.Context, key string, now time.Time) (ratelimit.Decision, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.Limiter.Admit(ctx, key, now)
}

type testServer struct {
	handler *handler.Handler
	store   *fakeStore
	limiter *countingLimiter
	now     *time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	imagesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "muffin.png"), []byte("\x89PNG\r\n\x1a\nmuffin"), 0o600))

	memory, err := ratelimit.NewMemoryLimiter(ratelimit.Rule{Requests: 100, Window: 30 * time.Second})
	require.NoError(t, err)

	catalog := service.NewCatalog("http://bakery.test")
	store := &fakeStore{}
	limiter := &countingLimiter{Limiter: memory}
	now := start

	h := handler.NewHandler(handler.Deps{
		Orders:    service.NewOrderService(service.NewOrderValidator(catalog), store),
		Catalog:   catalog,
		Identity:  service.NewIdentityResolver(map[string]string{validToken: "BBadger@wisc.edu", otherToken: "bucky@cs.wisc.edu"}, "wisc.edu"),
		Limiter:   limiter,
		ImagesDir: imagesDir,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return now },
	})
	return &testServer{handler: h, store: store, limiter: limiter, now: &now}
}

func (s *testServer) do(method, path, token, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-CS571-ID", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	s := newTestServer(t)

	for _, rr := range []*httptest.ResponseRecorder{
		s.do(http.MethodGet, "/api/bakery/items", validToken, "", ""),
		s.do(http.MethodGet, "/api/bakery/items", "", "", ""),
		s.do(http.MethodOptions, "/api/bakery/order", "", "", ""),
	} {
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-CS571-ID, Origin, X-Requested-With, Content-Type, Accept", rr.Header().Get("Access-Control-Allow-Headers"))
		assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
	_, err := uuid.Parse(rr.Header().Get("X-Request-Id"))
	assert.NoError(t, err)

	other := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
	assert.NotEqual(t, rr.Header().Get("X-Request-Id"), other.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/api/bakery/items", nil)
	req.Header.Set("X-CS571-ID", validToken)
	req.Header.Set("X-Request-Id", "trace-42")
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, "trace-42", rr.Header().Get("X-Request-Id"))
}

func TestPreflightSkipsIdentityAndLimiter(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodOptions, "/api/bakery/order", "", "", "")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, 0, s.limiter.calls)
}

func TestIdentityGate(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/bakery/order", "", "application/json", `{"muffin":1}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "You must specify a header X-CS571-ID!", decode(t, rr)["msg"])

	rr = s.do(http.MethodPost, "/api/bakery/order", "nope", "application/json", `{"muffin":1}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "You specified an invalid X-CS571-ID!", decode(t, rr)["msg"])

	rr = s.do(http.MethodGet, "/api/bakery/order", "nope", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	assert.Equal(t, 0, s.store.inserts)
	assert.Equal(t, 0, s.store.lists)
	assert.Equal(t, 0, s.limiter.calls)
}

func TestIdentityTokenIsCaseInsensitive(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/bakery/items", strings.ToLower(validToken), "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestImagesBypassIdentity(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/bakery/images/muffin", "", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rr.Header().Get("Cache-Control"))
	assert.Equal(t, start.Add(24*time.Hour).Format(http.TimeFormat), rr.Header().Get("Expires"))
	assert.Equal(t, 0, s.limiter.calls)

	rr = s.do(http.MethodGet, "/api/bakery/images/MUFFIN", "", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))

	rr = s.do(http.MethodGet, "/api/bakery/images/bagel", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/api/bakery/images/bagel", validToken, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetItems(t *testing.T) {
	s := newTestServer(t)

	first := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
	second := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "public, max-age=3600", first.Header().Get("Cache-Control"))
	assert.Equal(t, start.Add(time.Hour).Format(http.TimeFormat), first.Header().Get("Expires"))
	assert.True(t, strings.HasPrefix(first.Body.String(),
		`{"muffin":{"price":1.5,"img":"http://bakery.test/api/bakery/images/muffin","upperBound":12},"donut":`))

	items := decode(t, first)
	assert.Len(t, items, 5)
	assert.Equal(t, 6.75, items["pie"].(map[string]any)["price"])
}

func TestGetItemsBrotli(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bakery/items", nil)
	req.Header.Set("X-CS571-ID", validToken)
	req.Header.Set("Accept-Encoding", "br")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "br", rr.Header().Get("Content-Encoding"))

	plain, err := io.ReadAll(brotli.NewReader(rr.Body))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(plain, []byte(`{"muffin":`)))
}

func TestPostOrder(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantMsg     string
	}{
		{"single item", "application/json", `{"muffin":2}`, http.StatusOK, "Successfully made order!"},
		{"numeric string", "application/json", `{"donut":"3"}`, http.StatusOK, "Successfully made order!"},
		{"integral float", "application/json", `{"pie":1.0}`, http.StatusOK, "Successfully made order!"},
		{"form body", "application/x-www-form-urlencoded", "muffin=2&donut=1", http.StatusOK, "Successfully made order!"},
		{"unknown item", "application/json", `{"bagel":1}`, http.StatusBadRequest, "A request may only be made for muffin, donut, pie, cupcake, croissant. Baked goods are case-sensitive (and heat-sensitive!)."},
		{"wrong case", "application/json", `{"Muffin":1}`, http.StatusBadRequest, "A request may only be made for muffin, donut, pie, cupcake, croissant. Baked goods are case-sensitive (and heat-sensitive!)."},
		{"unknown wins over bound", "application/json", `{"bagel":"x","pie":99}`, http.StatusBadRequest, "A request may only be made for muffin, donut, pie, cupcake, croissant. Baked goods are case-sensitive (and heat-sensitive!)."},
		{"fraction", "application/json", `{"muffin":1.5}`, http.StatusBadRequest, "You may only request positive whole numbers of baked goods!"},
		{"negative", "application/json", `{"muffin":-1}`, http.StatusBadRequest, "You may only request positive whole numbers of baked goods!"},
		{"word", "application/json", `{"muffin":"abc"}`, http.StatusBadRequest, "You may only request positive whole numbers of baked goods!"},
		{"boolean", "application/json", `{"muffin":true}`, http.StatusBadRequest, "You may only request positive whole numbers of baked goods!"},
		{"repeated form value", "application/x-www-form-urlencoded", "muffin=1&muffin=2", http.StatusBadRequest, "You may only request positive whole numbers of baked goods!"},
		{"over bound", "application/json", `{"pie":7}`, http.StatusRequestEntityTooLarge, "You request too much of us! This is a small town bakery."},
		{"zero", "application/json", `{"muffin":0}`, http.StatusTeapot, "You must order something!"},
		{"empty object", "application/json", `{}`, http.StatusTeapot, "You must order something!"},
		{"empty body", "application/json", ``, http.StatusTeapot, "You must order something!"},
		{"no content type", "", `{"muffin":1}`, http.StatusTeapot, "You must order something!"},
		{"empty array", "application/json", `[]`, http.StatusTeapot, "You must order something!"},
		{"array keyed by index", "application/json", `[1]`, http.StatusBadRequest, "A request may only be made for muffin, donut, pie, cupcake, croissant. Baked goods are case-sensitive (and heat-sensitive!)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rr := s.do(http.MethodPost, "/api/bakery/order", validToken, tt.contentType, tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, tt.wantMsg, body["msg"])
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, float64(1), body["id"])
				assert.Equal(t, start.Format(time.RFC3339), body["placedOn"])
				assert.Equal(t, 1, s.store.inserts)
			} else {
				assert.Equal(t, 0, s.store.inserts)
			}
		})
	}
}

func TestPostOrderStoresUsername(t *testing.T) {
	s := newTestServer(t)

	s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", `{"muffin":2,"croissant":"12"}`)
	s.do(http.MethodPost, "/api/bakery/order", otherToken, "application/json", `{"donut":24}`)

	require.Len(t, s.store.orders, 2)
	assert.Equal(t, "bbadger", s.store.orders[0].Username)
	assert.Equal(t, model.Quantities{2, 0, 0, 0, 12}, s.store.orders[0].Quantities())
	assert.Equal(t, "bucky", s.store.orders[1].Username)
}

func TestPostOrderMalformedJSON(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", `{"muffin":`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Contains(t, body["error-msg"], "Oops! Something went wrong.")
	assert.Equal(t, "{}", body["error-req"])
	assert.Equal(t, "3/14/2026 3:09:26 PM", body["date-time"])
	assert.Equal(t, 0, s.store.inserts)
}

func TestPostOrderScalarJSON(t *testing.T) {
	for _, body := range []string{`5`, `null`, `"muffin"`} {
		s := newTestServer(t)

		rr := s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", body)

		assert.Equal(t, http.StatusInternalServerError, rr.Code, body)
		assert.Equal(t, "{}", decode(t, rr)["error-req"], body)
	}
}

func TestPostOrderOversizedBody(t *testing.T) {
	s := newTestServer(t)

	huge := `{"muffin":"` + strings.Repeat("1", 200<<10) + `"}`
	rr := s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", huge)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "{}", decode(t, rr)["error-req"])
}

func TestStoreFailure(t *testing.T) {
	s := newTestServer(t)
	s.store.err = errors.New("SQLITE_BUSY: database is locked")

	rr := s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", `{"muffin":1}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Contains(t, body["msg"], "The operation failed.")
	assert.Equal(t, "SQLITE_BUSY: database is locked", body["error"])

	rr = s.do(http.MethodGet, "/api/bakery/order", validToken, "", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "SQLITE_BUSY: database is locked", decode(t, rr)["error"])
}

func TestGetOrdersNewestFirst(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/bakery/order", validToken, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decode(t, rr)["orders"])

	for i := 0; i < 30; i++ {
		rr := s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", `{"cupcake":1}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr = s.do(http.MethodGet, "/api/bakery/order", validToken, "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Msg    string        `json:"msg"`
		Orders []model.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Successfully got the latest orders!", body.Msg)
	require.Len(t, body.Orders, 25)
	assert.Equal(t, int64(30), body.Orders[0].ID)
	assert.Equal(t, int64(6), body.Orders[24].ID)
	assert.Equal(t, 1, body.Orders[0].NumCupcake)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 100; i++ {
		rr := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr := s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many requests, please try again later.", decode(t, rr)["msg"])
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))

	// Keys are case-insensitive like the identity lookup.
	rr = s.do(http.MethodGet, "/api/bakery/items", strings.ToLower(validToken), "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = s.do(http.MethodGet, "/api/bakery/items", otherToken, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "99", rr.Header().Get("X-RateLimit-Remaining"))

	rr = s.do(http.MethodPost, "/api/bakery/order", validToken, "application/json", `{"muffin":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, 0, s.store.inserts)

	*s.now = start.Add(31 * time.Second)
	rr = s.do(http.MethodGet, "/api/bakery/items", validToken, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/bakery/cookies", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/api/bakery/cookies", validToken, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, decode(t, rr)["msg"])

	rr = s.do(http.MethodDelete, "/api/bakery/order", validToken, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSupervisorRecoversPanics(t *testing.T) {
	s := newTestServer(t)
	s.store.panicked = true

	rr := s.do(http.MethodGet, "/api/bakery/order", validToken, "", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "{}", body["error-req"])
	assert.Equal(t, "3/14/2026 3:09:26 PM", body["date-time"])

	s.store.panicked = false
	rr = s.do(http.MethodGet, "/api/bakery/order", validToken, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
