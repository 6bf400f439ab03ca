package model

import (
	"time"
)

// Difficulty 题目难度，封闭枚举，数据只允许这三个桶
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties 固定顺序的全部难度桶
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CognitiveLevel 认知层级（布鲁姆分层的简化版）
type CognitiveLevel string

const (
	CognitiveRecall      CognitiveLevel = "recall"
	CognitiveApplication CognitiveLevel = "application"
	CognitiveAnalysis    CognitiveLevel = "analysis"
)

func (l CognitiveLevel) Valid() bool {
	switch l {
	case CognitiveRecall, CognitiveApplication, CognitiveAnalysis:
		return true
	}
	return false
}

// BucketStats 单个难度/认知层级桶的累计计数
type BucketStats struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy 桶内正确率，无数据时为 0
func (s BucketStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// StudentProfile 学生学习画像，按 user_id 唯一。
// 嵌套统计和滑动窗口以 JSON 列存储，派生字段在每次写入时重算。
type StudentProfile struct {
	ID                  uint                                   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              string                                 `gorm:"size:64;uniqueIndex;not null" json:"userId"`
	TopicPerformance    map[string]map[Difficulty]*BucketStats `gorm:"type:json;serializer:json" json:"topicPerformance"`
	CognitiveLevels     map[CognitiveLevel]*BucketStats        `gorm:"type:json;serializer:json" json:"cognitiveLevels"`
	LearningPace        float64                                `json:"learningPace"` // 每分钟可完成题数
	PreferredDifficulty Difficulty                             `gorm:"size:10" json:"preferredDifficulty"`
	LastActivity        time.Time                              `json:"lastActivity"`
	TotalQuestions      int                                    `json:"totalQuestions"`
	CorrectAnswers      int                                    `json:"correctAnswers"`
	RecentTimes         []float64                              `gorm:"type:json;serializer:json" json:"recentTimes"`   // 最近 ≤20 次答题耗时（秒），FIFO
	RecentResults       []bool                                 `gorm:"type:json;serializer:json" json:"recentResults"` // 最近 ≤10 次正误，FIFO
	CreatedAt           time.Time                              `json:"createdAt"`
	UpdatedAt           time.Time                              `json:"updatedAt"`
}

func (StudentProfile) TableName() string {
	return "student_profiles"
}

// NewStudentProfile 冷启动画像，默认推荐 medium
func NewStudentProfile(userID string) *StudentProfile {
	return &StudentProfile{
		UserID:              userID,
		TopicPerformance:    make(map[string]map[Difficulty]*BucketStats),
		CognitiveLevels:     make(map[CognitiveLevel]*BucketStats),
		PreferredDifficulty: DifficultyMedium,
		LastActivity:        time.Now(),
	}
}

// EnsureBuckets 持久化往返后重建可能缺失的 map/切片
func (p *StudentProfile) EnsureBuckets() {
	if p.TopicPerformance == nil {
		p.TopicPerformance = make(map[string]map[Difficulty]*BucketStats)
	}
	if p.CognitiveLevels == nil {
		p.CognitiveLevels = make(map[CognitiveLevel]*BucketStats)
	}
	if p.PreferredDifficulty == "" {
		p.PreferredDifficulty = DifficultyMedium
	}
}
