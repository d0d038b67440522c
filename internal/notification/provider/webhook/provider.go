// Package webhook delivers tenant notifications to a configured HTTP
// endpoint, typically the main application's notification inbox.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coresolution/billinghub/internal/notification/domain"
)

type Provider struct {
	url    string
	client *http.Client
}

func New(url string) *Provider {
	return &Provider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Provider) Name() string { return "webhook" }

func (p *Provider) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
