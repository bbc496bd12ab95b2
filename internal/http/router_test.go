package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solmere/go-wellness-backend/internal/alert"
	"github.com/solmere/go-wellness-backend/internal/config"
	"github.com/solmere/go-wellness-backend/internal/domain"
	"github.com/solmere/go-wellness-backend/internal/http/middleware"
	"github.com/solmere/go-wellness-backend/internal/notify"
	"github.com/solmere/go-wellness-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(
		&domain.Signal{}, &domain.MoodEntry{}, &domain.CrisisAlert{},
		&domain.QualityMetric{}, &domain.Contact{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		Crisis:         config.CrisisConfig{Window: 3, MeanThreshold: 3, DeclineSlope: -2, LowCeiling: 4},
	}
}

// --- fake delivery channel so dispatch succeeds without a real gateway ---
type okChannel struct{}

func (okChannel) Notify(_ context.Context, contact domain.Contact, _ notify.AlertPayload) (notify.DeliveryReceipt, error) {
	return notify.DeliveryReceipt{ContactID: contact.ID, DeliveredAt: time.Now().UTC()}, nil
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	db := newTestDB(t)

	RegisterRoutes(r, db, nil, nil, cfg)

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	db := newTestDB(t)

	RegisterRoutes(r, db, nil, nil, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	db := newTestDB(t)
	RegisterRoutes(r, db, nil, nil, cfg)

	// Any request goes through the middleware stack
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func Test_repoShims_Proxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	ctx := context.Background()

	// --- signal shim ---
	sshim := signalRepoShim{}
	sig, err := sshim.CreateSignal(ctx, db, "u1", "sess1", domain.SignalCompletion, "", time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}
	if sig == nil || sig.ID == "" || sig.Kind != domain.SignalCompletion {
		t.Fatalf("CreateSignal returned bad signal: %+v", sig)
	}
	signals, err := sshim.ListSessionSignals(ctx, db, "u1", "sess1")
	if err != nil || len(signals) != 1 {
		t.Fatalf("ListSessionSignals: %v (n=%d)", err, len(signals))
	}

	// --- mood shim ---
	mshim := moodRepoShim{}
	entry, err := mshim.CreateMoodEntry(ctx, db, "u1", 6, []string{"calm"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateMoodEntry: %v", err)
	}
	if entry == nil || entry.Score != 6 {
		t.Fatalf("CreateMoodEntry returned bad entry: %+v", entry)
	}
	moods, err := mshim.ListRecentMoods(ctx, db, "u1", 10)
	if err != nil || len(moods) != 1 {
		t.Fatalf("ListRecentMoods: %v (n=%d)", err, len(moods))
	}

	// --- metric shim ---
	qshim := metricRepoShim{}
	m, err := qshim.CreateQualityMetric(ctx, db, "response_quality", "sess1", "session", 0.8, 0.9, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateQualityMetric: %v", err)
	}
	if m == nil || m.Score != 0.8 {
		t.Fatalf("CreateQualityMetric returned bad metric: %+v", m)
	}
	metrics, err := qshim.ListMetrics(ctx, db, "sess1", "session", "response_quality")
	if err != nil || len(metrics) != 1 {
		t.Fatalf("ListMetrics: %v (n=%d)", err, len(metrics))
	}
}

// End-to-end: register a contact, submit three low moods, and watch the alert
// pipeline deliver through the fake channel.
func TestAPI_CrisisFlow_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)

	mgr := alert.NewManager(
		&repo.AlertStore{DB: db},
		&repo.ContactStore{DB: db},
		okChannel{},
		alert.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterFactor: 0.1, AttemptTimeout: time.Second},
		zerolog.Nop(),
	)
	t.Cleanup(mgr.Close)

	RegisterRoutes(r, db, mgr, nil, testConfig())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		t.Helper()
		var rd io.Reader
		if body != "" {
			rd = bytes.NewBufferString(body)
		}
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, rd)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		r.ServeHTTP(w, req)
		return w
	}

	// Register a trusted contact.
	w := do(http.MethodPost, "/api/v1/users/u1/contacts",
		`{"name":"Dana","kind":"email","address":"dana@example.com","priority":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create contact = %d (%s)", w.Code, w.Body.String())
	}

	// Three low mood check-ins; the third must trigger.
	at := time.Now().UTC().Add(-time.Minute)
	for i, score := range []int{2, 3, 2} {
		body := fmt.Sprintf(`{"score":%d,"occurred_at":%q}`, score, at.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
		w = do(http.MethodPost, "/api/v1/moods", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("submit mood %d = %d (%s)", i, w.Code, w.Body.String())
		}
	}
	var resp struct {
		Alert *domain.CrisisAlert `json:"alert"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode mood response: %v", err)
	}
	if resp.Alert == nil {
		t.Fatalf("third low mood must surface an alert: %s", w.Body.String())
	}
	if resp.Alert.SeverityLevel != 2 {
		t.Fatalf("expected severity 2, got %d", resp.Alert.SeverityLevel)
	}

	// The worker delivers through the fake channel.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = do(http.MethodGet, "/api/v1/users/u1/alerts", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list alerts = %d", w.Code)
		}
		var list struct {
			Alerts []domain.CrisisAlert `json:"alerts"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			t.Fatalf("decode alerts: %v", err)
		}
		if len(list.Alerts) > 0 && list.Alerts[0].State == domain.AlertDelivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("alert never delivered: %s", w.Body.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPI_SignalIdempotencyReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, nil, nil, testConfig())

	body := fmt.Sprintf(`{"session_id":"sess1","kind":"completion","occurred_at":%q}`,
		time.Now().UTC().Add(-time.Minute).Format(time.RFC3339))

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set(middleware.HeaderIdempotencyKey, "sig-key-1")
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("first submit = %d (%s)", first.Code, first.Body.String())
	}
	var created domain.Signal
	if err := json.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode first: %v", err)
	}

	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("replay = %d (%s)", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header on second submit")
	}
	var replayed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replayed.ID != created.ID {
		t.Fatalf("replay must echo the original resource: %q vs %q", replayed.ID, created.ID)
	}

	// Only one signal row was written.
	var n int64
	if err := db.Model(&domain.Signal{}).Count(&n).Error; err != nil {
		t.Fatalf("count signals: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 signal after replay, got %d", n)
	}
}
