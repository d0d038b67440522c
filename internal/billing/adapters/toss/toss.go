// Package toss implements the Toss Payments billing-auth flow: hosted
// authorization page redirect plus the authKey-for-billingKey issue API.
package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/coresolution/billinghub/internal/billing/domain"
)

const (
	defaultBaseURL     = "https://api.tosspayments.com"
	defaultAuthPageURL = "https://payment.toss.im/billing-auth"

	issuePath = "/v1/billing/authorizations/issue"
	probePath = "/v1/payments/connection-probe"
)

type Factory struct {
	baseURL     string
	authPageURL string
	client      *http.Client
}

type Option func(*Factory)

// WithBaseURL overrides the API host, used by tests and sandbox
// environments.
func WithBaseURL(u string) Option {
	return func(f *Factory) { f.baseURL = strings.TrimRight(u, "/") }
}

func WithAuthPageURL(u string) Option {
	return func(f *Factory) { f.authPageURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.client = c }
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		baseURL:     defaultBaseURL,
		authPageURL: defaultAuthPageURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Provider() domain.Provider {
	return domain.ProviderToss
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: missing secret key", domain.ErrGatewayUnavailable)
	}

	return &Adapter{
		tenantID:    cfg.TenantID,
		clientKey:   strings.TrimSpace(cfg.ClientKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		baseURL:     f.baseURL,
		authPageURL: f.authPageURL,
		client:      f.client,
	}, nil
}

type Adapter struct {
	tenantID    snowflake.ID
	clientKey   string
	secretKey   string
	baseURL     string
	authPageURL string
	client      *http.Client
}

func (a *Adapter) RequestBillingAuth(ctx context.Context, params domain.BillingAuthParams) (*domain.BillingAuthRedirect, error) {
	if strings.TrimSpace(params.CustomerKey) == "" {
		return nil, fmt.Errorf("%w: customerKey is required", domain.ErrGatewayUnavailable)
	}
	if a.clientKey == "" {
		return nil, fmt.Errorf("%w: missing client key", domain.ErrGatewayUnavailable)
	}
	for _, raw := range []string{params.SuccessURL, params.FailURL} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: callback URL must be absolute: %q", domain.ErrGatewayUnavailable, raw)
		}
	}

	q := url.Values{}
	q.Set("clientKey", a.clientKey)
	q.Set("method", "CARD")
	q.Set("customerKey", params.CustomerKey)
	if params.CustomerName != "" {
		q.Set("customerName", params.CustomerName)
	}
	if params.CustomerEmail != "" {
		q.Set("customerEmail", params.CustomerEmail)
	}
	q.Set("successUrl", params.SuccessURL)
	q.Set("failUrl", params.FailURL)

	return &domain.BillingAuthRedirect{URL: a.authPageURL + "?" + q.Encode()}, nil
}

type issueRequest struct {
	AuthKey     string `json:"authKey"`
	CustomerKey string `json:"customerKey"`
}

type issueResponse struct {
	BillingKey  string `json:"billingKey"`
	CustomerKey string `json:"customerKey"`
	CardCompany string `json:"cardCompany"`
	CardNumber  string `json:"cardNumber"`
	Card        struct {
		IssuerCode string `json:"issuerCode"`
		CardType   string `json:"cardType"`
	} `json:"card"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *Adapter) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*domain.PaymentMethodDetails, error) {
	body, err := json.Marshal(issueRequest{AuthKey: authKey, CustomerKey: customerKey})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+issuePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", a.basicAuth())
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var issued issueResponse
		if err := json.Unmarshal(raw, &issued); err != nil || issued.BillingKey == "" {
			return nil, fmt.Errorf("%w: malformed issue response", domain.ErrGatewayUnavailable)
		}
		return &domain.PaymentMethodDetails{
			BillingKey: issued.BillingKey,
			CardBrand:  issued.CardCompany,
			CardLast4:  cardLast4(issued.CardNumber),
		}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var vendorErr errorResponse
		_ = json.Unmarshal(raw, &vendorErr)
		if vendorErr.Message == "" {
			vendorErr.Message = resp.Status
		}
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrExchangeRejected, vendorErr.Message, vendorErr.Code)

	default:
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
}

// Ping issues an authenticated probe. 401/403 means bad credentials;
// any other response from the vendor proves the credentials reached it.
func (a *Adapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+probePath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", a.basicAuth())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.New("toss: credentials rejected")
	}
	return nil
}

func (a *Adapter) basicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.secretKey+":"))
}

func cardLast4(masked string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, masked)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
