package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"smart_edu_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const answerHistoryCacheTTL = 5 * time.Minute

// AnswerRepository 问答历史的存取层，读路径带 Redis 缓存
type AnswerRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewAnswerRepository(db *gorm.DB, rdb *redis.Client) *AnswerRepository {
	return &AnswerRepository{DB: db, RDB: rdb}
}

func (r *AnswerRepository) Create(record *model.AnswerRecord) error {
	if err := r.DB.Create(record).Error; err != nil {
		return err
	}

	// 写入后使该用户的历史缓存失效
	if r.RDB != nil {
		r.RDB.Del(context.Background(), r.historyCacheKey(record.UserID))
	}
	return nil
}

func (r *AnswerRepository) FindByUser(ctx context.Context, userID string, limit int) ([]model.AnswerRecord, error) {
	key := r.historyCacheKey(userID)

	if r.RDB != nil {
		if cached, err := r.RDB.Get(ctx, key).Result(); err == nil {
			var records []model.AnswerRecord
			if err := json.Unmarshal([]byte(cached), &records); err == nil && len(records) >= limit {
				return records[:limit], nil
			}
		}
	}

	var records []model.AnswerRecord
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	if r.RDB != nil {
		if data, err := json.Marshal(records); err == nil {
			r.RDB.Set(ctx, key, data, answerHistoryCacheTTL)
		}
	}

	return records, nil
}

func (r *AnswerRepository) historyCacheKey(userID string) string {
	return fmt.Sprintf("qa:history:%s", userID)
}
