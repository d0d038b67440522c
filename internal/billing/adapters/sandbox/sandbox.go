// Package sandbox is a deterministic in-process gateway used by
// test-mode tenant configurations. It skips the vendor hop entirely:
// the "hosted page" is the success URL itself with a synthetic authKey
// appended, so the full initiate/resume handshake can run end to end
// without network access.
package sandbox

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/coresolution/billinghub/internal/billing/domain"
)

const AuthKeyPrefix = "sandbox_auth_"

var cardBrands = []string{"VISA", "MASTERCARD", "AMEX", "JCB"}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() domain.Provider {
	return domain.ProviderSandbox
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: missing secret key", domain.ErrGatewayUnavailable)
	}
	return &Adapter{secretKey: cfg.SecretKey}, nil
}

type Adapter struct {
	secretKey string
}

func (a *Adapter) RequestBillingAuth(ctx context.Context, params domain.BillingAuthParams) (*domain.BillingAuthRedirect, error) {
	if strings.TrimSpace(params.CustomerKey) == "" {
		return nil, fmt.Errorf("%w: customerKey is required", domain.ErrGatewayUnavailable)
	}

	u, err := url.Parse(params.SuccessURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: success URL must be absolute", domain.ErrGatewayUnavailable)
	}

	q := u.Query()
	q.Set("authKey", AuthKeyPrefix+ulid.MustNew(ulid.Now(), rand.Reader).String())
	u.RawQuery = q.Encode()

	return &domain.BillingAuthRedirect{URL: u.String()}, nil
}

// IssueBillingKey accepts only sandbox-issued keys and derives stable
// card details from them, so replays return identical data.
func (a *Adapter) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*domain.PaymentMethodDetails, error) {
	if !strings.HasPrefix(authKey, AuthKeyPrefix) {
		return nil, fmt.Errorf("%w: unknown authorization key", domain.ErrExchangeRejected)
	}

	sum := sha256.Sum256([]byte(authKey + ":" + customerKey))
	digest := hex.EncodeToString(sum[:])

	last4 := fmt.Sprintf("%04d", (int(sum[0])<<8|int(sum[1]))%10000)

	return &domain.PaymentMethodDetails{
		BillingKey:   "sandbox_bk_" + digest[:24],
		CardBrand:    cardBrands[int(sum[2])%len(cardBrands)],
		CardLast4:    last4,
		CardExpMonth: int(sum[3])%12 + 1,
		CardExpYear:  2030 + int(sum[4])%5,
	}, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	return nil
}
