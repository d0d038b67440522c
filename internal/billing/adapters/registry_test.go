package adapters

import (
	"testing"

	"github.com/coresolution/billinghub/internal/billing/adapters/sandbox"
	"github.com/coresolution/billinghub/internal/billing/adapters/toss"
	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Dispatch(t *testing.T) {
	registry := NewRegistry(toss.NewFactory(), sandbox.NewFactory())

	require.True(t, registry.Supports(domain.ProviderToss))
	require.True(t, registry.Supports(domain.ProviderSandbox))
	require.False(t, registry.Supports(domain.ProviderIamport))

	adapter, err := registry.NewAdapter(domain.ProviderSandbox, domain.AdapterConfig{SecretKey: "sk"})
	require.NoError(t, err)
	require.NotNil(t, adapter)
}

func TestRegistry_UnsupportedProvider(t *testing.T) {
	registry := NewRegistry(toss.NewFactory())

	_, err := registry.NewAdapter(domain.ProviderKakao, domain.AdapterConfig{})
	require.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}
