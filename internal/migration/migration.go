// Package migration brings the schema up to date at process start.
// A postgres advisory lock serializes concurrent instances racing to
// migrate the same database; sqlite (tests, local dev) skips the lock.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/coresolution/billinghub/internal/audit/domain"
	"github.com/coresolution/billinghub/internal/authz"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
)

const advisoryLockKey int64 = 7_310_552_884

func models() []any {
	return []any{
		&billingdomain.PaymentMethod{},
		&billingdomain.Subscription{},
		&billingdomain.Registration{},
		&billingdomain.Plan{},
		&pgconfigdomain.Configuration{},
		&auditdomain.AuditLog{},
		&authz.OpsAPIKey{},
	}
}

func Run(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if db.Dialector.Name() == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		unlock, err := acquireAdvisoryLock(ctx, sqlDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				log.Warn("failed to release migration lock", zap.Error(err))
			}
		}()
	}

	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	log.Info("schema migrated")
	return nil
}

type unlockFunc func(ctx context.Context) error

func acquireAdvisoryLock(ctx context.Context, db *sql.DB) (unlockFunc, error) {
	var locked bool
	err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		return nil, errors.New("another migration process holds the advisory lock")
	}

	return func(unlockCtx context.Context) error {
		var released bool
		if err := db.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", advisoryLockKey).Scan(&released); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		if !released {
			return errors.New("advisory lock was not held by this session")
		}
		return nil
	}, nil
}

var Module = fx.Module("migration",
	fx.Invoke(func(db *gorm.DB, log *zap.Logger) error {
		return Run(context.Background(), db, log)
	}),
)
