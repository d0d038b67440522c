// Package seed installs the baseline pricing plans. Idempotent: plans
// are matched by code and only created when absent.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
)

type planSpec struct {
	Name         string
	Description  string
	BillingCycle string
	AmountCents  int64
	Currency     string
}

var defaultPlans = []planSpec{
	{
		Name:         "Standard Monthly",
		Description:  "Full counseling center feature set, billed monthly.",
		BillingCycle: billingdomain.BillingCycleMonthly,
		AmountCents:  49_000_00,
		Currency:     "KRW",
	},
	{
		Name:         "Standard Yearly",
		Description:  "Full counseling center feature set, billed yearly.",
		BillingCycle: billingdomain.BillingCycleYearly,
		AmountCents:  490_000_00,
		Currency:     "KRW",
	},
	{
		Name:         "Clinic Plus Monthly",
		Description:  "Multi-branch centers with extended reporting.",
		BillingCycle: billingdomain.BillingCycleMonthly,
		AmountCents:  89_000_00,
		Currency:     "KRW",
	},
}

func Plans(ctx context.Context, db *gorm.DB, genID *snowflake.Node, log *zap.Logger) error {
	log = log.Named("seed")

	for _, spec := range defaultPlans {
		code := slug.Make(spec.Name)

		var existing billingdomain.Plan
		err := db.WithContext(ctx).Where("code = ?", code).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		plan := &billingdomain.Plan{
			ID:           genID.Generate(),
			Code:         code,
			Name:         spec.Name,
			Description:  spec.Description,
			BillingCycle: spec.BillingCycle,
			AmountCents:  spec.AmountCents,
			Currency:     spec.Currency,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := db.WithContext(ctx).Create(plan).Error; err != nil {
			return err
		}
		log.Info("seeded plan", zap.String("code", code))
	}

	return nil
}
