package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	auditservice "github.com/coresolution/billinghub/internal/audit/service"
	"github.com/coresolution/billinghub/internal/authz"
	"github.com/coresolution/billinghub/internal/billing/adapters"
	"github.com/coresolution/billinghub/internal/billing/adapters/sandbox"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	billingservice "github.com/coresolution/billinghub/internal/billing/service"
	"github.com/coresolution/billinghub/internal/clock"
	"github.com/coresolution/billinghub/internal/config"
	notificationservice "github.com/coresolution/billinghub/internal/notification/service"
	"github.com/coresolution/billinghub/internal/observability"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
	pgconfigservice "github.com/coresolution/billinghub/internal/pgconfig/service"
	"github.com/coresolution/billinghub/internal/security/vault"
)

type serverFixture struct {
	srv   *Server
	db    *gorm.DB
	keys  *authz.KeyService
	pgSvc pgconfigdomain.Service
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	// A plain ":memory:" DSN gives every pooled connection its own empty
	// database, which breaks the casbin adapter's SavePolicy (it mixes a
	// transaction connection with the base connection). A named shared
	// in-memory database keeps all connections on the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billingdomain.PaymentMethod{},
		&billingdomain.Subscription{},
		&billingdomain.Registration{},
		&billingdomain.Plan{},
		&pgconfigdomain.Configuration{},
		&auditdomain.AuditLog{},
		&authz.OpsAPIKey{},
	))

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	v, err := vault.NewFactory(vault.Config{AESKey: "test-encryption-key"})
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.SystemClock{}
	registry := adapters.NewRegistry(sandbox.NewFactory())
	auditSvc := auditservice.NewService(db, log, node)
	metrics := observability.NewMetrics()

	cfg := config.Config{}
	cfg.Server.Mode = "test"
	cfg.Billing = config.BillingConfig{
		CallbackBaseURL: "https://app.clinic.example",
		DefaultProvider: string(billingdomain.ProviderSandbox),
		ExchangeTTLSec:  60,
	}

	pgSvc := pgconfigservice.NewService(pgconfigservice.ServiceParams{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Vault:    v,
		Registry: registry,
		AuditSvc: auditSvc,
		Notifier: notificationservice.NewDispatcher(log, nil),
	})

	planSvc := billingservice.NewPlanService(db)

	enforcer, err := authz.NewEnforcer(db)
	require.NoError(t, err)
	keys := authz.NewKeyService(db, node)

	srv := NewServer(ServerParams{
		Engine:   NewEngine(cfg, log, metrics),
		DB:       db,
		Redis:    redisClient,
		Log:      log,
		Config:   cfg,
		Metrics:  metrics,
		Enforcer: enforcer,
		Keys:     keys,
		RegistrationSvc: billingservice.NewRegistrationService(billingservice.RegistrationServiceParams{
			DB:       db,
			Log:      log,
			Config:   cfg,
			GenID:    node,
			Clock:    clk,
			Vault:    v,
			Registry: registry,
			PgConfig: pgSvc,
			Redis:    redisClient,
			Metrics:  metrics,
			AuditSvc: auditSvc,
		}),
		PaymentMethodSvc: billingservice.NewPaymentMethodService(billingservice.PaymentMethodServiceParams{
			DB:       db,
			Log:      log,
			Clock:    clk,
			AuditSvc: auditSvc,
		}),
		SubscriptionSvc: billingservice.NewSubscriptionService(billingservice.SubscriptionServiceParams{
			DB:       db,
			Log:      log,
			GenID:    node,
			Clock:    clk,
			Plans:    planSvc,
			AuditSvc: auditSvc,
		}),
		PlanSvc:     planSvc,
		PgConfigSvc: pgSvc,
	})
	srv.RegisterRoutes()

	return &serverFixture{srv: srv, db: db, keys: keys, pgSvc: pgSvc}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(w, req)
	return w
}

func tenantHeaders(tenantID snowflake.ID) map[string]string {
	return map[string]string{
		"X-Tenant-Id":  tenantID.String(),
		"X-User-Id":    "user-1",
		"X-User-Name":  "Dr. Kim",
		"X-User-Email": "kim@clinic.example",
	}
}

func (f *serverFixture) activateSandboxConfig(t *testing.T, tenantID snowflake.ID) {
	t.Helper()
	ctx := context.Background()

	cfg, err := f.pgSvc.Submit(ctx, pgconfigdomain.SubmitRequest{
		TenantID:    tenantID,
		Provider:    billingdomain.ProviderSandbox,
		PgName:      "Sandbox Gateway",
		APIKey:      "test_ck",
		SecretKey:   "test_sk",
		TestMode:    true,
		RequestedBy: "owner@clinic.example",
	})
	require.NoError(t, err)
	_, err = f.pgSvc.Approve(ctx, cfg.ID, pgconfigdomain.ApproveRequest{ApprovedBy: "admin"})
	require.NoError(t, err)
	_, err = f.pgSvc.Activate(ctx, cfg.ID, "admin")
	require.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	f := newTestServer(t)
	w := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenantHeaderRequired(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/api/billing/payment-methods", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/billing/payment-methods", nil, map[string]string{"X-Tenant-Id": "not-a-number"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegistrationCallbackRoundTrip(t *testing.T) {
	f := newTestServer(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	w := f.do(t, http.MethodPost, "/api/billing/registrations", nil, tenantHeaders(tenantID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var beginResp struct {
		Data struct {
			RedirectURL string `json:"redirect_url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &beginResp))
	require.NotEmpty(t, beginResp.Data.RedirectURL)

	// The sandbox redirect is the success callback URL with the vendor
	// authKey appended; replay it against the callback route.
	u, err := url.Parse(beginResp.Data.RedirectURL)
	require.NoError(t, err)
	callbackPath := "/billing/callback?" + u.RawQuery

	w = f.do(t, http.MethodGet, callbackPath, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cbResp struct {
		Data billingdomain.CallbackResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cbResp))
	assert.Equal(t, billingdomain.CallbackOutcomeSucceeded, cbResp.Data.Outcome)
	assert.False(t, cbResp.Data.Replayed)
	require.NotNil(t, cbResp.Data.PaymentMethod)

	// Refreshing the callback page replays idempotently.
	w = f.do(t, http.MethodGet, callbackPath, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cbResp))
	assert.True(t, cbResp.Data.Replayed)

	// The payment method is now listed for the tenant.
	w = f.do(t, http.MethodGet, "/api/billing/payment-methods", nil, tenantHeaders(tenantID))
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Count)
}

func TestCallbackValidation(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/billing/callback?status=weird&customerKey=x&tenantId=1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/billing/callback?status=success&tenantId=1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackFailOutcome(t *testing.T) {
	f := newTestServer(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	w := f.do(t, http.MethodPost, "/api/billing/registrations", nil, tenantHeaders(tenantID))
	require.Equal(t, http.StatusCreated, w.Code)

	var beginResp struct {
		Data struct {
			CustomerKey string `json:"customer_key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &beginResp))

	q := url.Values{}
	q.Set("status", "fail")
	q.Set("customerKey", beginResp.Data.CustomerKey)
	q.Set("tenantId", tenantID.String())
	q.Set("errorCode", "PAY_PROCESS_CANCELED")
	q.Set("errorMessage", "user canceled")

	w = f.do(t, http.MethodGet, "/billing/callback?"+q.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cbResp struct {
		Data billingdomain.CallbackResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cbResp))
	assert.Equal(t, billingdomain.CallbackOutcomeFailed, cbResp.Data.Outcome)
	assert.Equal(t, "PAY_PROCESS_CANCELED", cbResp.Data.ErrorCode)
}

func TestOpsAuthz(t *testing.T) {
	f := newTestServer(t)
	ctx := context.Background()

	tenantID := snowflake.ID(1001)
	cfg, err := f.pgSvc.Submit(ctx, pgconfigdomain.SubmitRequest{
		TenantID:    tenantID,
		Provider:    billingdomain.ProviderSandbox,
		PgName:      "Sandbox Gateway",
		APIKey:      "test_ck",
		SecretKey:   "test_sk",
		RequestedBy: "owner@clinic.example",
	})
	require.NoError(t, err)

	adminKey, _, err := f.keys.Issue(ctx, "admin", authz.RoleOpsAdmin)
	require.NoError(t, err)
	viewerKey, _, err := f.keys.Issue(ctx, "viewer", authz.RoleOpsViewer)
	require.NoError(t, err)

	// No key at all.
	w := f.do(t, http.MethodGet, "/ops/pg-configurations", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Viewer may read but not approve.
	w = f.do(t, http.MethodGet, "/ops/pg-configurations", nil, map[string]string{"Authorization": "Bearer " + viewerKey})
	assert.Equal(t, http.StatusOK, w.Code)

	approvePath := fmt.Sprintf("/ops/pg-configurations/%s/approve", cfg.ID.String())
	w = f.do(t, http.MethodPost, approvePath, nil, map[string]string{"Authorization": "Bearer " + viewerKey})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin approves.
	w = f.do(t, http.MethodPost, approvePath, nil, map[string]string{"Authorization": "Bearer " + adminKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated, err := f.pgSvc.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, pgconfigdomain.StatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, "admin", *updated.ApprovedBy)

	// Approving again conflicts.
	w = f.do(t, http.MethodPost, approvePath, nil, map[string]string{"Authorization": "Bearer " + adminKey})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRejectValidation(t *testing.T) {
	f := newTestServer(t)
	ctx := context.Background()

	cfg, err := f.pgSvc.Submit(ctx, pgconfigdomain.SubmitRequest{
		TenantID:    snowflake.ID(1001),
		Provider:    billingdomain.ProviderSandbox,
		PgName:      "Sandbox Gateway",
		APIKey:      "test_ck",
		SecretKey:   "test_sk",
		RequestedBy: "owner@clinic.example",
	})
	require.NoError(t, err)

	adminKey, _, err := f.keys.Issue(ctx, "admin", authz.RoleOpsAdmin)
	require.NoError(t, err)
	headers := map[string]string{"Authorization": "Bearer " + adminKey}
	rejectPath := fmt.Sprintf("/ops/pg-configurations/%s/reject", cfg.ID.String())

	w := f.do(t, http.MethodPost, rejectPath, map[string]string{"rejection_reason": "too short"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, rejectPath, map[string]string{"rejection_reason": "merchant details do not match the business registration"}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated, err := f.pgSvc.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, pgconfigdomain.StatusRejected, updated.Status)
}

func TestExchangeRejectedStatus(t *testing.T) {
	f := newTestServer(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	w := f.do(t, http.MethodPost, "/api/billing/payment-methods/register", map[string]string{
		"auth_key":     "not-a-sandbox-key",
		"customer_key": "ck-1",
	}, tenantHeaders(tenantID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
