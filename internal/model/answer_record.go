package model

import (
	"time"
)

// AnswerRecord 存储问答历史，主键为内容哈希（用户+问题+时间戳的 md5）
type AnswerRecord struct {
	ID                string     `gorm:"primaryKey;size:32" json:"id"`
	UserID            string     `gorm:"size:64;index" json:"userId"`
	Question          string     `gorm:"type:text;not null" json:"question"`
	Answer            string     `gorm:"type:text;not null" json:"answer"`
	AnswerType        AnswerType `gorm:"size:20" json:"answerType"`
	Confidence        float64    `json:"confidence"`
	Sources           []string   `gorm:"type:json;serializer:json" json:"sources"`
	ContextChunkCount int        `json:"contextChunkCount"`
	CreatedAt         time.Time  `gorm:"index" json:"createdAt"`
}

func (AnswerRecord) TableName() string {
	return "answer_records"
}
