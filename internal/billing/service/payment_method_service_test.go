package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresolution/billinghub/internal/billing/domain"
)

// registerPaymentMethod runs the full sandbox handshake and returns the
// issued payment method.
func (f *billingFixture) registerPaymentMethod(t *testing.T, tenantID snowflake.ID) *domain.PaymentMethod {
	t.Helper()

	reg, err := f.regSvc.Begin(actorCtx(tenantID), domain.BeginRegistrationRequest{})
	require.NoError(t, err)

	result, err := f.regSvc.HandleCallback(context.Background(), callbackQueryFromRedirect(t, reg.RedirectURL))
	require.NoError(t, err)
	require.NotNil(t, result.PaymentMethod)
	return result.PaymentMethod
}

func TestPaymentMethodList(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	otherTenant := snowflake.ID(2002)
	f.activateSandboxConfig(t, tenantID)
	f.activateSandboxConfig(t, otherTenant)

	first := f.registerPaymentMethod(t, tenantID)
	second := f.registerPaymentMethod(t, tenantID)
	f.registerPaymentMethod(t, otherTenant)

	methods, err := f.pmSvc.List(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	// The first registered method became the default and sorts first.
	assert.Equal(t, first.ID, methods[0].ID)
	assert.True(t, methods[0].IsDefault)
	assert.Equal(t, second.ID, methods[1].ID)
	assert.False(t, methods[1].IsDefault)
}

func TestPaymentMethodSetDefault(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)
	ctx := context.Background()

	first := f.registerPaymentMethod(t, tenantID)
	second := f.registerPaymentMethod(t, tenantID)

	require.NoError(t, f.pmSvc.SetDefault(ctx, tenantID, second.ID))

	methods, err := f.pmSvc.List(ctx, tenantID)
	require.NoError(t, err)

	defaults := 0
	for _, m := range methods {
		if m.IsDefault {
			defaults++
			assert.Equal(t, second.ID, m.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	got, err := f.pmSvc.GetDefault(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// A foreign tenant cannot claim the method.
	err = f.pmSvc.SetDefault(ctx, snowflake.ID(9999), first.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodNotFound)
}

func TestPaymentMethodDelete(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)
	ctx := context.Background()

	pm := f.registerPaymentMethod(t, tenantID)

	require.NoError(t, f.pmSvc.Delete(ctx, tenantID, pm.ID))

	_, err := f.pmSvc.GetDefault(ctx, tenantID)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodNotFound)

	err = f.pmSvc.Delete(ctx, tenantID, pm.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodNotFound)
}

func TestPaymentMethodDeleteBlockedBySubscription(t *testing.T) {
	f := setupBilling(t)
	tenantID := snowflake.ID(1001)
	f.activateSandboxConfig(t, tenantID)
	ctx := context.Background()

	pm := f.registerPaymentMethod(t, tenantID)
	plan := f.seedPlan(t)

	sub, err := f.subSvc.Create(ctx, domain.CreateSubscriptionRequest{
		TenantID:        tenantID,
		PlanID:          plan.ID,
		PaymentMethodID: pm.ID,
	})
	require.NoError(t, err)

	// PENDING_ACTIVATION already counts as live.
	err = f.pmSvc.Delete(ctx, tenantID, pm.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodInUse)

	_, err = f.subSvc.Activate(ctx, tenantID, sub.ID)
	require.NoError(t, err)
	err = f.pmSvc.Delete(ctx, tenantID, pm.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodInUse)

	// Cancelling the subscription releases the payment method.
	_, err = f.subSvc.Cancel(ctx, tenantID, sub.ID)
	require.NoError(t, err)
	assert.NoError(t, f.pmSvc.Delete(ctx, tenantID, pm.ID))
}
