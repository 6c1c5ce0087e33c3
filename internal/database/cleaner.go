package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

// StartCleaner purges revoked tokens that have expired. It runs once immediately and then on
// every tick until ctx is cancelled.
func StartCleaner(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	logger.Info("Revoked token cleaner started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	PurgeExpiredTokens(ctx, db)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			PurgeExpiredTokens(ctx, db)
		}
	}
}

// PurgeExpiredTokens deletes revoked tokens whose expiry has passed and returns how many went.
func PurgeExpiredTokens(ctx context.Context, db *gorm.DB) int64 {
	res := db.WithContext(ctx).Where("expires_at < ?", time.Now().UTC()).Delete(&models.RevokedToken{})
	if res.Error != nil {
		logger.Error("Revoked token purge failed", "error", res.Error)
		return 0
	}
	if res.RowsAffected > 0 {
		logger.Info("Purged expired revoked tokens", "count", res.RowsAffected)
	}
	return res.RowsAffected
}
