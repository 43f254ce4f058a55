package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"pdfqa/internal/model"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 200
)

type QAExchangeRepository struct {
	db *gorm.DB
}

func NewQAExchangeRepository(db *gorm.DB) *QAExchangeRepository {
	return &QAExchangeRepository{db: db}
}

func (r *QAExchangeRepository) Create(ctx context.Context, exchange *model.QAExchange) error {
	if err := r.db.WithContext(ctx).Create(exchange).Error; err != nil {
		return fmt.Errorf("create qa exchange failed: %w", err)
	}
	return nil
}

// ListBySessionKey returns the exchanges of one session, oldest first.
func (r *QAExchangeRepository) ListBySessionKey(ctx context.Context, sessionKey string, limit int) ([]model.QAExchange, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	var exchanges []model.QAExchange
	if err := r.db.WithContext(ctx).
		Where("session_key = ?", sessionKey).
		Order("created_at ASC").
		Limit(limit).
		Find(&exchanges).Error; err != nil {
		return nil, fmt.Errorf("list qa exchanges failed: %w", err)
	}
	return exchanges, nil
}
