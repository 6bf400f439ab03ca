package model

import (
	"time"
)

// QuestionAttempt 一次答题事件，评分时由调用方构造，记录后不再修改
type QuestionAttempt struct {
	QuestionID     string         `json:"questionId" binding:"required"`
	Topic          string         `json:"topic" binding:"required"`
	Difficulty     Difficulty     `json:"difficulty" binding:"required"`
	CognitiveLevel CognitiveLevel `json:"cognitiveLevel" binding:"required"`
	Correct        bool           `json:"correct"`
	TimeTaken      float64        `json:"timeTaken"` // 秒
	Timestamp      time.Time      `json:"timestamp"`
	Confidence     float64        `json:"confidence"` // 学生自评信心 0-1
}

// AnswerType 问答结果的三种终态
type AnswerType string

const (
	AnswerCurriculumBased  AnswerType = "curriculum_based"
	AnswerGeneralKnowledge AnswerType = "general_knowledge"
	AnswerError            AnswerType = "error"
)

// RetrievedChunk 检索到的课程内容片段，仅在单次请求内存活
type RetrievedChunk struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance float64                `json:"distance"` // 越小越相关
}

// AnswerResult 问答管线的输出
type AnswerResult struct {
	Answer            string     `json:"answer"`
	Confidence        float64    `json:"confidence"`
	Sources           []string   `json:"sources"`
	ContextChunkCount int        `json:"contextChunkCount"`
	AnswerType        AnswerType `json:"answerType"`
}

// TopicScore 弱项话题与其正确率
type TopicScore struct {
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// StrengthAnalysis 学生能力画像汇总
type StrengthAnalysis struct {
	OverallScore        float64                `json:"overallScore"`
	TotalQuestions      int                    `json:"totalQuestions"`
	CorrectAnswers      int                    `json:"correctAnswers"`
	LearningPace        float64                `json:"learningPace"`
	PreferredDifficulty Difficulty             `json:"preferredDifficulty"`
	WeakTopics          []TopicScore           `json:"weakTopics"`
	TopicPerformance    map[string]float64     `json:"topicPerformance"`
	CognitiveLevels     map[CognitiveLevel]int `json:"cognitiveLevels"`
	Recommendations     []string               `json:"recommendations"`
}

// AdaptiveQuestionPlan 下一批题目的难度决策
type AdaptiveQuestionPlan struct {
	RecommendedDifficulty Difficulty `json:"recommendedDifficulty"`
	NumQuestions          int        `json:"numQuestions"`
	Topic                 string     `json:"topic"`
	AdaptiveReasoning     string     `json:"adaptiveReasoning"`
}

// DifficultyProgress 某话题下单个难度桶的进度
type DifficultyProgress struct {
	Total   int     `json:"total"`
	Correct int     `json:"correct"`
	Score   float64 `json:"score"`
}

// PacePoint 答题速度的 5 点滑动平均轨迹
type PacePoint struct {
	Attempt   int     `json:"attempt"`
	Pace      float64 `json:"pace"`
	TimeTaken float64 `json:"timeTaken"`
}

// ActivityEntry 最近活动摘要
type ActivityEntry struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Time        string `json:"time"`
	Score       string `json:"score"`
}

// StudentHistory 学习历史与进度
type StudentHistory struct {
	TotalQuestions        int                                         `json:"totalQuestions"`
	CorrectAnswers        int                                         `json:"correctAnswers"`
	OverallScore          float64                                     `json:"overallScore"`
	TopicsAttempted       []string                                    `json:"topicsAttempted"`
	DifficultyProgression map[string]map[Difficulty]DifficultyProgress `json:"difficultyProgression"`
	LearningPaceHistory   []PacePoint                                 `json:"learningPaceHistory"`
	RecentActivity        []ActivityEntry                             `json:"recentActivity"`
	LastActivity          string                                      `json:"lastActivity"`
}
