package service

import (
	"context"
	"time"

	"github.com/coresolution/billinghub/internal/notification/domain"
	"go.uber.org/zap"
)

type Dispatcher struct {
	log       *zap.Logger
	providers []domain.Provider
}

func NewDispatcher(log *zap.Logger, providers []domain.Provider) domain.Service {
	return &Dispatcher{
		log:       log.Named("notification.dispatcher"),
		providers: providers,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) {
	if len(d.providers) == 0 {
		d.log.Debug("no notification providers configured",
			zap.String("event", n.Event),
			zap.String("tenant_id", n.TenantID.String()))
		return
	}

	// Detach from the request context so an aborted request does not
	// cancel delivery mid-flight.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)

	go func() {
		defer cancel()
		for _, p := range d.providers {
			if err := p.Send(sendCtx, n); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("provider", p.Name()),
					zap.String("event", n.Event),
					zap.String("tenant_id", n.TenantID.String()),
					zap.Error(err))
			}
		}
	}()
}
