package repository

import (
	"errors"
	"smart_edu_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 学生画像的 MySQL 存取层
type ProfileRepository struct {
	DB *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{DB: db}
}

// Get 按 user_id 读取画像，不存在时返回 (nil, nil)，冷启动由上层处理
func (r *ProfileRepository) Get(userID string) (*model.StudentProfile, error) {
	var profile model.StudentProfile
	err := r.DB.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// JSON 列反序列化后重建缺失的桶
	profile.EnsureBuckets()
	return &profile, nil
}

// Put 写穿式保存，按 user_id upsert
func (r *ProfileRepository) Put(profile *model.StudentProfile) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(profile).Error
}
