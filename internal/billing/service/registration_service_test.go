package service

import (
	"context"
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
	"github.com/coresolution/billinghub/internal/billing/adapters"
	"github.com/coresolution/billinghub/internal/billing/adapters/sandbox"
	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/clock"
	"github.com/coresolution/billinghub/internal/config"
	notificationservice "github.com/coresolution/billinghub/internal/notification/service"
	"github.com/coresolution/billinghub/internal/observability"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
	pgconfigservice "github.com/coresolution/billinghub/internal/pgconfig/service"
	"github.com/coresolution/billinghub/internal/security/vault"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

type billingFixture struct {
	db      *gorm.DB
	regSvc  domain.RegistrationService
	pmSvc   domain.PaymentMethodService
	subSvc  domain.SubscriptionService
	planSvc domain.PlanService
	pgSvc   pgconfigdomain.Service
	genID   *snowflake.Node
}

func setupBilling(t *testing.T) *billingFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.PaymentMethod{},
		&domain.Subscription{},
		&domain.Registration{},
		&domain.Plan{},
		&pgconfigdomain.Configuration{},
		&auditdomain.AuditLog{},
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

	cfg := config.Config{}
	cfg.Billing = config.BillingConfig{
		CallbackBaseURL: "https://app.clinic.example",
		DefaultProvider: string(domain.ProviderSandbox),
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

	planSvc := NewPlanService(db)

	return &billingFixture{
		db: db,
		regSvc: NewRegistrationService(RegistrationServiceParams{
			DB:       db,
			Log:      log,
			Config:   cfg,
			GenID:    node,
			Clock:    clk,
			Vault:    v,
			Registry: registry,
			PgConfig: pgSvc,
			Redis:    redisClient,
			Metrics:  observability.NewMetrics(),
			AuditSvc: auditSvc,
		}),
		pmSvc: NewPaymentMethodService(PaymentMethodServiceParams{
			DB:       db,
			Log:      log,
			Clock:    clk,
			AuditSvc: auditSvc,
		}),
		subSvc: NewSubscriptionService(SubscriptionServiceParams{
			DB:       db,
			Log:      log,
			GenID:    node,
			Clock:    clk,
			Plans:    planSvc,
			AuditSvc: auditSvc,
		}),
		planSvc: planSvc,
		pgSvc:   pgSvc,
		genID:   node,
	}
}

func (f *billingFixture) activateSandboxConfig(t *testing.T, tenantID snowflake.ID) {
	t.Helper()
	ctx := context.Background()

	cfg, err := f.pgSvc.Submit(ctx, pgconfigdomain.SubmitRequest{
		TenantID:    tenantID,
		Provider:    domain.ProviderSandbox,
		PgName:      "Sandbox Gateway",
		APIKey:      "test_ck_sandbox",
		SecretKey:   "test_sk_sandbox",
		TestMode:    true,
		RequestedBy: "owner@clinic.example",
	})
	require.NoError(t, err)

	_, err = f.pgSvc.Approve(ctx, cfg.ID, pgconfigdomain.ApproveRequest{ApprovedBy: "admin@platform.example"})
	require.NoError(t, err)
	_, err = f.pgSvc.Activate(ctx, cfg.ID, "admin@platform.example")
	require.NoError(t, err)
}

func actorCtx(tenantID snowflake.ID) context.Context {
	return tenantcontext.WithActor(context.Background(), tenantcontext.Actor{
		TenantID: tenantID,
		UserID:   "user-1",
		Name:     "Dr. Kim",
		Email:    "kim@clinic.example",
	})
}

func TestBeginRequiresTenant(t *testing.T) {
	f := setupBilling(t)

	_, err := f.regSvc.Begin(context.Background(), domain.BeginRegistrationRequest{})
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestBeginRequiresActiveConfig(t *testing.T) {
	f := setupBilling(t)

	_, err := f.regSvc.Begin(actorCtx(1001), domain.BeginRegistrationRequest{})
	assert.ErrorIs(t, err, pgconfigdomain.ErrNoActiveConfig)
}

func TestBegin(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RegistrationStatusOpen, reg.Status)
	assert.Equal(t, domain.ProviderSandbox, reg.Provider)
	assert.NotEmpty(t, reg.CustomerKey)
	assert.NotEmpty(t, reg.Reference)
	assert.NotEmpty(t, reg.RedirectURL)

	// The callback URLs carry the correlation state across the redirect.
	u, err := url.Parse(reg.SuccessURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "success", q.Get("status"))
	assert.Equal(t, reg.CustomerKey, q.Get("customerKey"))
	assert.Equal(t, tenantID.String(), q.Get("tenantId"))

	u, err = url.Parse(reg.FailURL)
	require.NoError(t, err)
	assert.Equal(t, "fail", u.Query().Get("status"))

	// Each attempt gets a fresh customerKey.
	reg2, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, reg.CustomerKey, reg2.CustomerKey)
}

// callbackQueryFromRedirect parses the sandbox redirect, which is the
// success URL with the vendor-issued authKey appended.
func callbackQueryFromRedirect(t *testing.T, redirectURL string) domain.CallbackQuery {
	t.Helper()
	u, err := url.Parse(redirectURL)
	require.NoError(t, err)
	q := u.Query()
	return domain.CallbackQuery{
		Status:      q.Get("status"),
		CustomerKey: q.Get("customerKey"),
		TenantID:    q.Get("tenantId"),
		AuthKey:     q.Get("authKey"),
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	q := callbackQueryFromRedirect(t, reg.RedirectURL)
	result, err := f.regSvc.HandleCallback(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, domain.CallbackOutcomeSucceeded, result.Outcome)
	assert.False(t, result.Replayed)
	require.NotNil(t, result.PaymentMethod)
	assert.True(t, result.PaymentMethod.IsDefault)
	assert.Equal(t, tenantID, result.PaymentMethod.TenantID)
	assert.NotEmpty(t, result.PaymentMethod.CardBrand)
	assert.Len(t, result.PaymentMethod.CardLast4, 4)

	// The billing key is stored encrypted.
	var stored domain.PaymentMethod
	require.NoError(t, f.db.First(&stored, "id = ?", result.PaymentMethod.ID).Error)
	assert.NotContains(t, stored.BillingKeyEncrypted, "sandbox_bk_")

	var storedReg domain.Registration
	require.NoError(t, f.db.First(&storedReg, "id = ?", reg.ID).Error)
	assert.Equal(t, domain.RegistrationStatusSucceeded, storedReg.Status)
	require.NotNil(t, storedReg.PaymentMethodID)
	assert.Equal(t, result.PaymentMethod.ID, *storedReg.PaymentMethodID)
	assert.NotNil(t, storedReg.CompletedAt)
}

func TestHandleCallbackReplay(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	q := callbackQueryFromRedirect(t, reg.RedirectURL)
	first, err := f.regSvc.HandleCallback(context.Background(), q)
	require.NoError(t, err)

	// A page refresh re-sends the exact same query string.
	second, err := f.regSvc.HandleCallback(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, domain.CallbackOutcomeSucceeded, second.Outcome)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentMethod.ID, second.PaymentMethod.ID)

	var count int64
	require.NoError(t, f.db.Model(&domain.PaymentMethod{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleCallbackFail(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	result, err := f.regSvc.HandleCallback(context.Background(), domain.CallbackQuery{
		Status:       domain.CallbackStatusFail,
		CustomerKey:  reg.CustomerKey,
		TenantID:     tenantID.String(),
		ErrorCode:    "PAY_PROCESS_CANCELED",
		ErrorMessage: "the user closed the payment window",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CallbackOutcomeFailed, result.Outcome)
	assert.Equal(t, "PAY_PROCESS_CANCELED", result.ErrorCode)

	var storedReg domain.Registration
	require.NoError(t, f.db.First(&storedReg, "id = ?", reg.ID).Error)
	assert.Equal(t, domain.RegistrationStatusFailed, storedReg.Status)
	assert.Equal(t, "PAY_PROCESS_CANCELED", storedReg.FailureCode)

	// A fail callback never reaches the vendor exchange.
	var count int64
	require.NoError(t, f.db.Model(&domain.PaymentMethod{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestHandleCallbackMalformed(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	cases := []domain.CallbackQuery{
		{Status: "done", CustomerKey: reg.CustomerKey, TenantID: tenantID.String()},
		{Status: domain.CallbackStatusSuccess, TenantID: tenantID.String(), AuthKey: "x"},
		{Status: domain.CallbackStatusSuccess, CustomerKey: reg.CustomerKey, TenantID: "not-a-number", AuthKey: "x"},
		{Status: domain.CallbackStatusSuccess, CustomerKey: reg.CustomerKey, TenantID: tenantID.String()},
	}
	for _, q := range cases {
		_, err := f.regSvc.HandleCallback(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrMalformedCallback)
	}

	var storedReg domain.Registration
	require.NoError(t, f.db.First(&storedReg, "id = ?", reg.ID).Error)
	assert.Equal(t, domain.RegistrationStatusOpen, storedReg.Status)
}

func TestHandleCallbackRejectedAuthKey(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	result, err := f.regSvc.HandleCallback(context.Background(), domain.CallbackQuery{
		Status:      domain.CallbackStatusSuccess,
		CustomerKey: reg.CustomerKey,
		TenantID:    tenantID.String(),
		AuthKey:     "not-a-sandbox-key",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CallbackOutcomeFailed, result.Outcome)
	assert.Equal(t, "AUTH_KEY_REJECTED", result.ErrorCode)

	var storedReg domain.Registration
	require.NoError(t, f.db.First(&storedReg, "id = ?", reg.ID).Error)
	assert.Equal(t, domain.RegistrationStatusFailed, storedReg.Status)
}

func TestHandleCallbackRejectedAuthKeyRefresh(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	q := domain.CallbackQuery{
		Status:      domain.CallbackStatusSuccess,
		CustomerKey: reg.CustomerKey,
		TenantID:    tenantID.String(),
		AuthKey:     "not-a-sandbox-key",
	}
	first, err := f.regSvc.HandleCallback(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackOutcomeFailed, first.Outcome)

	// A page refresh re-sends the same query. The registration is
	// terminal, so the stored outcome is re-rendered; never a gateway
	// error.
	second, err := f.regSvc.HandleCallback(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackOutcomeFailed, second.Outcome)
	assert.Equal(t, "AUTH_KEY_REJECTED", second.ErrorCode)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
}

func TestExchangeRejectedRepeat(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)

	req := domain.ExchangeRequest{
		TenantID:    tenantID,
		Provider:    domain.ProviderSandbox,
		AuthKey:     "not-a-sandbox-key",
		CustomerKey: "cust-rejected-repeat",
	}
	_, _, err := f.regSvc.Exchange(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrExchangeRejected)

	// The claim outlives the rejection; a repeat within the TTL still
	// reports the rejection, not an exchange in progress.
	_, _, err = f.regSvc.Exchange(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrExchangeRejected)
	require.NotErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestExchangeTenantMismatch(t *testing.T) {
	f := setupBilling(t)
	tenantA := snowflake.ID(1001)
	tenantB := snowflake.ID(2002)
	f.activateSandboxConfig(t, tenantA)
	f.activateSandboxConfig(t, tenantB)

	reg, err := f.regSvc.Begin(actorCtx(tenantA), domain.BeginRegistrationRequest{})
	require.NoError(t, err)
	q := callbackQueryFromRedirect(t, reg.RedirectURL)

	_, _, err = f.regSvc.Exchange(context.Background(), domain.ExchangeRequest{
		TenantID:    tenantA,
		Provider:    domain.ProviderSandbox,
		AuthKey:     q.AuthKey,
		CustomerKey: q.CustomerKey,
	})
	require.NoError(t, err)

	// The same authKey cannot be exchanged under another tenant.
	_, _, err = f.regSvc.Exchange(context.Background(), domain.ExchangeRequest{
		TenantID:    tenantB,
		Provider:    domain.ProviderSandbox,
		AuthKey:     q.AuthKey,
		CustomerKey: q.CustomerKey,
	})
	assert.ErrorIs(t, err, domain.ErrExchangeRejected)
}
