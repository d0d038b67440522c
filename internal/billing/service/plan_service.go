package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/coresolution/billinghub/internal/billing/domain"
)

type PlanServiceImpl struct {
	db *gorm.DB
}

func NewPlanService(db *gorm.DB) domain.PlanService {
	return &PlanServiceImpl{db: db}
}

func (s *PlanServiceImpl) ListActive(ctx context.Context) ([]*domain.Plan, error) {
	var plans []*domain.Plan
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("amount_cents ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *PlanServiceImpl) Get(ctx context.Context, planID snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}
