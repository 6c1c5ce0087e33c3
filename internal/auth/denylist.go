package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/petermazzocco/go-blog-api/models"
)

// Denylist tracks revoked token ids until they would have stopped working anyway.
// Revoke reports whether this call was the one that revoked jti.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// GormDenylist stores revoked tokens in the revoked_tokens table.
type GormDenylist struct {
	db *gorm.DB
}

func NewGormDenylist(db *gorm.DB) *GormDenylist {
	return &GormDenylist{db: db}
}

func (d *GormDenylist) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	row := models.RevokedToken{JTI: jti, ExpiresAt: until.UTC()}
	res := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("gorm denylist: revoke: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *GormDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var row models.RevokedToken
	err := d.db.WithContext(ctx).Where("jti = ?", jti).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gorm denylist: lookup: %w", err)
	}
	return true, nil
}

// RedisClient is the subset of the redis client the denylist needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDenylist keeps revoked tokens as expiring keys, so no cleanup job is needed.
type RedisDenylist struct {
	client RedisClient
	now    func() time.Time
}

func NewRedisDenylist(client RedisClient) *RedisDenylist {
	return &RedisDenylist{client: client, now: time.Now}
}

func (d *RedisDenylist) key(jti string) string {
	return "auth:revoked:" + jti
}

// Revoke skips ids already past until; such a token can no longer be used anyway.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return false, nil
	}
	set, err := d.client.SetNX(ctx, d.key(jti), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis denylist: revoke: %w", err)
	}
	return set, nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis denylist: lookup: %w", err)
	}
	return n > 0, nil
}
