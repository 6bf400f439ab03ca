package service

import (
	"fmt"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	recentTimesWindow   = 20 // 答题耗时滑动窗口
	recentResultsWindow = 10 // 近期正误滑动窗口
	topicMinAttempts    = 3  // 话题内单桶可信的最少答题数
	weakTopicMinTotal   = 5  // 计入弱项的最少总答题数

	hardThreshold   = 0.70
	mediumThreshold = 0.60

	escalateAccuracy   = 0.80
	deescalateAccuracy = 0.40
)

// ProfileStore 学生画像的持久化抽象，由 repository.ProfileRepository 实现
type ProfileStore interface {
	Get(userID string) (*model.StudentProfile, error)
	Put(profile *model.StudentProfile) error
}

// AdaptiveService 自适应学习引擎：记录答题、维护画像、推荐难度
type AdaptiveService struct {
	store ProfileStore

	// 每个 user_id 一把锁，串行化画像的读改写
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAdaptiveService(store ProfileStore) *AdaptiveService {
	return &AdaptiveService{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *AdaptiveService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// loadProfile 读画像，存储故障降级为冷启动画像
func (s *AdaptiveService) loadProfile(userID string) *model.StudentProfile {
	profile, err := s.store.Get(userID)
	if err != nil {
		logger.Log.Warn("failed to load student profile, using empty profile",
			zap.String("userId", userID), zap.Error(err))
		return nil
	}
	return profile
}

// RecordAttempt 记录一次答题并写穿保存画像。
// 对调用方永远成功：持久化失败只记日志，内存内的更新照常完成。
func (s *AdaptiveService) RecordAttempt(userID string, attempt model.QuestionAttempt) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile := s.loadProfile(userID)
	if profile == nil {
		profile = model.NewStudentProfile(userID)
	}

	profile.TotalQuestions++
	if attempt.Correct {
		profile.CorrectAnswers++
	}
	profile.LastActivity = time.Now()

	// 话题桶先整体初始化再累加，保证三个难度桶始终齐全
	if _, ok := profile.TopicPerformance[attempt.Topic]; !ok {
		buckets := make(map[model.Difficulty]*model.BucketStats, len(model.Difficulties))
		for _, d := range model.Difficulties {
			buckets[d] = &model.BucketStats{}
		}
		profile.TopicPerformance[attempt.Topic] = buckets
	}
	topicStats := profile.TopicPerformance[attempt.Topic][attempt.Difficulty]
	topicStats.Total++
	if attempt.Correct {
		topicStats.Correct++
	}

	if _, ok := profile.CognitiveLevels[attempt.CognitiveLevel]; !ok {
		profile.CognitiveLevels[attempt.CognitiveLevel] = &model.BucketStats{}
	}
	cogStats := profile.CognitiveLevels[attempt.CognitiveLevel]
	cogStats.Total++
	if attempt.Correct {
		cogStats.Correct++
	}

	s.updateLearningPace(profile, attempt)
	s.updateRecentResults(profile, attempt)
	s.updatePreferredDifficulty(profile)

	if err := s.store.Put(profile); err != nil {
		// 可用性优先：吞掉持久化错误，下次写入会重试整份画像
		logger.Log.Error("failed to persist student profile",
			zap.String("userId", userID), zap.Error(err))
	}

	monitoring.AttemptCounter.WithLabelValues(
		string(attempt.Difficulty),
		strconv.FormatBool(attempt.Correct),
	).Inc()
}

func (s *AdaptiveService) updateLearningPace(profile *model.StudentProfile, attempt model.QuestionAttempt) {
	profile.RecentTimes = append(profile.RecentTimes, attempt.TimeTaken)
	if len(profile.RecentTimes) > recentTimesWindow {
		profile.RecentTimes = profile.RecentTimes[len(profile.RecentTimes)-recentTimesWindow:]
	}

	var sum float64
	for _, t := range profile.RecentTimes {
		sum += t
	}
	avg := sum / float64(len(profile.RecentTimes))
	if avg > 0 {
		profile.LearningPace = 60.0 / avg
	} else {
		profile.LearningPace = 0
	}
}

func (s *AdaptiveService) updateRecentResults(profile *model.StudentProfile, attempt model.QuestionAttempt) {
	profile.RecentResults = append(profile.RecentResults, attempt.Correct)
	if len(profile.RecentResults) > recentResultsWindow {
		profile.RecentResults = profile.RecentResults[len(profile.RecentResults)-recentResultsWindow:]
	}
}

// updatePreferredDifficulty 全局口径：各难度桶取"有答题的话题"的正确率平均，
// 按 hard→medium→easy 的固定优先级套阈值
func (s *AdaptiveService) updatePreferredDifficulty(profile *model.StudentProfile) {
	scores := make(map[model.Difficulty]float64, len(model.Difficulties))
	counts := make(map[model.Difficulty]int, len(model.Difficulties))

	for _, buckets := range profile.TopicPerformance {
		for difficulty, stats := range buckets {
			if stats.Total > 0 {
				scores[difficulty] += stats.Accuracy()
				counts[difficulty]++
			}
		}
	}

	avg := make(map[model.Difficulty]float64, len(model.Difficulties))
	for _, d := range model.Difficulties {
		if counts[d] > 0 {
			avg[d] = scores[d] / float64(counts[d])
		}
	}

	switch {
	case avg[model.DifficultyHard] >= hardThreshold:
		profile.PreferredDifficulty = model.DifficultyHard
	case avg[model.DifficultyMedium] >= mediumThreshold:
		profile.PreferredDifficulty = model.DifficultyMedium
	default:
		profile.PreferredDifficulty = model.DifficultyEasy
	}
}

// GetRecommendedDifficulty 话题级难度推荐。
// 未知用户返回 medium；未知话题回落到画像的全局偏好；
// 话题内单桶少于 3 次答题按 0 分处理，避免小样本误升级。
func (s *AdaptiveService) GetRecommendedDifficulty(userID, topic string) model.Difficulty {
	profile := s.loadProfile(userID)
	if profile == nil {
		return model.DifficultyMedium
	}

	if topic != "" {
		if buckets, ok := profile.TopicPerformance[topic]; ok {
			scores := make(map[model.Difficulty]float64, len(model.Difficulties))
			for difficulty, stats := range buckets {
				if stats.Total >= topicMinAttempts {
					scores[difficulty] = stats.Accuracy()
				}
			}

			switch {
			case scores[model.DifficultyHard] >= hardThreshold:
				return model.DifficultyHard
			case scores[model.DifficultyMedium] >= mediumThreshold:
				return model.DifficultyMedium
			default:
				return model.DifficultyEasy
			}
		}
	}

	return profile.PreferredDifficulty
}

// GenerateAdaptiveQuestions 下一批题目的难度决策：
// 长期推荐打底，近期（≤10 次）表现做短期修正
func (s *AdaptiveService) GenerateAdaptiveQuestions(userID, topic string, numQuestions int) model.AdaptiveQuestionPlan {
	recommended := s.GetRecommendedDifficulty(userID, topic)

	if profile := s.loadProfile(userID); profile != nil && len(profile.RecentResults) > 0 {
		correct := 0
		for _, ok := range profile.RecentResults {
			if ok {
				correct++
			}
		}
		recentScore := float64(correct) / float64(len(profile.RecentResults))

		if recentScore > escalateAccuracy && recommended != model.DifficultyHard {
			recommended = model.DifficultyHard
		} else if recentScore < deescalateAccuracy && recommended != model.DifficultyEasy {
			recommended = model.DifficultyEasy
		}
	}

	return model.AdaptiveQuestionPlan{
		RecommendedDifficulty: recommended,
		NumQuestions:          numQuestions,
		Topic:                 topic,
		AdaptiveReasoning:     fmt.Sprintf("Based on your performance in %s, we recommend %s level questions", topic, recommended),
	}
}

// WeakTopics 弱项话题：总答题数 ≥5 的话题按正确率升序取前 limit 个。
// 样本不足的话题整体排除，不做惩罚。
func (s *AdaptiveService) WeakTopics(userID string, limit int) []model.TopicScore {
	profile := s.loadProfile(userID)
	if profile == nil {
		return []model.TopicScore{}
	}
	return weakTopicsOf(profile, limit)
}

func weakTopicsOf(profile *model.StudentProfile, limit int) []model.TopicScore {
	scores := make([]model.TopicScore, 0, len(profile.TopicPerformance))

	for topic, buckets := range profile.TopicPerformance {
		totalCorrect, totalQuestions := 0, 0
		for _, stats := range buckets {
			totalCorrect += stats.Correct
			totalQuestions += stats.Total
		}
		if totalQuestions >= weakTopicMinTotal {
			scores = append(scores, model.TopicScore{
				Topic: topic,
				Score: float64(totalCorrect) / float64(totalQuestions),
			})
		}
	}

	// 升序，最弱在前；同分按话题名保证结果稳定
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score < scores[j].Score
		}
		return scores[i].Topic < scores[j].Topic
	})

	if limit < len(scores) {
		scores = scores[:limit]
	}
	return scores
}

// StrengthAnalysis 能力画像汇总，供报表展示
func (s *AdaptiveService) StrengthAnalysis(userID string) *model.StrengthAnalysis {
	profile := s.loadProfile(userID)
	if profile == nil {
		return &model.StrengthAnalysis{
			PreferredDifficulty: model.DifficultyMedium,
			WeakTopics:          []model.TopicScore{},
			TopicPerformance:    map[string]float64{},
			CognitiveLevels:     map[model.CognitiveLevel]int{},
			Recommendations:     []string{},
		}
	}

	overall := 0.0
	if profile.TotalQuestions > 0 {
		overall = float64(profile.CorrectAnswers) / float64(profile.TotalQuestions)
	}

	topicPerformance := make(map[string]float64, len(profile.TopicPerformance))
	for topic, buckets := range profile.TopicPerformance {
		totalCorrect, totalQuestions := 0, 0
		for _, stats := range buckets {
			totalCorrect += stats.Correct
			totalQuestions += stats.Total
		}
		if totalQuestions > 0 {
			topicPerformance[topic] = float64(totalCorrect) / float64(totalQuestions)
		} else {
			topicPerformance[topic] = 0
		}
	}

	cognitiveLevels := make(map[model.CognitiveLevel]int, len(profile.CognitiveLevels))
	for level, stats := range profile.CognitiveLevels {
		cognitiveLevels[level] = stats.Total
	}

	weakTopics := weakTopicsOf(profile, 3)

	// 三档建议：补基础 / 练应用 / 冲难题
	recommendations := []string{}
	switch {
	case overall < 0.5:
		recommendations = append(recommendations, "Focus on fundamental concepts and basic recall questions")
	case overall < 0.7:
		recommendations = append(recommendations, "Practice application-based questions to improve understanding")
	default:
		recommendations = append(recommendations, "Challenge yourself with analytical and complex problem-solving questions")
	}
	if len(weakTopics) > 0 {
		names := make([]string, 0, len(weakTopics))
		for _, t := range weakTopics {
			names = append(names, t.Topic)
		}
		recommendations = append(recommendations, "Focus on improving: "+strings.Join(names, ", "))
	}

	return &model.StrengthAnalysis{
		OverallScore:        overall,
		TotalQuestions:      profile.TotalQuestions,
		CorrectAnswers:      profile.CorrectAnswers,
		LearningPace:        profile.LearningPace,
		PreferredDifficulty: profile.PreferredDifficulty,
		WeakTopics:          weakTopics,
		TopicPerformance:    topicPerformance,
		CognitiveLevels:     cognitiveLevels,
		Recommendations:     recommendations,
	}
}

// StudentHistory 学习历史与进度轨迹
func (s *AdaptiveService) StudentHistory(userID string) *model.StudentHistory {
	profile := s.loadProfile(userID)
	if profile == nil {
		return &model.StudentHistory{
			TopicsAttempted:       []string{},
			DifficultyProgression: map[string]map[model.Difficulty]model.DifficultyProgress{},
			LearningPaceHistory:   []model.PacePoint{},
			RecentActivity:        []model.ActivityEntry{},
		}
	}

	topics := make([]string, 0, len(profile.TopicPerformance))
	progression := make(map[string]map[model.Difficulty]model.DifficultyProgress, len(profile.TopicPerformance))
	for topic, buckets := range profile.TopicPerformance {
		topics = append(topics, topic)
		progression[topic] = make(map[model.Difficulty]model.DifficultyProgress)
		for difficulty, stats := range buckets {
			if stats.Total > 0 {
				progression[topic][difficulty] = model.DifficultyProgress{
					Total:   stats.Total,
					Correct: stats.Correct,
					Score:   stats.Accuracy(),
				}
			}
		}
	}

	// 速度轨迹：5 点滑动平均
	paceHistory := make([]model.PacePoint, 0, len(profile.RecentTimes))
	for i := range profile.RecentTimes {
		lo := i - 4
		if lo < 0 {
			lo = 0
		}
		window := profile.RecentTimes[lo : i+1]
		var sum float64
		for _, t := range window {
			sum += t
		}
		avg := sum / float64(len(window))
		pace := 0.0
		if avg > 0 {
			pace = 60.0 / avg
		}
		paceHistory = append(paceHistory, model.PacePoint{
			Attempt:   i + 1,
			Pace:      round2(pace),
			TimeTaken: round2(avg),
		})
	}

	overall := 0.0
	if profile.TotalQuestions > 0 {
		overall = float64(profile.CorrectAnswers) / float64(profile.TotalQuestions)
	}

	recentActivity := []model.ActivityEntry{}
	if len(profile.RecentTimes) > 0 {
		recentActivity = append(recentActivity, model.ActivityEntry{
			Type:        "quiz_completion",
			Description: fmt.Sprintf("Completed %d questions", len(profile.RecentTimes)),
			Time:        profile.LastActivity.Format("2006-01-02 15:04"),
			Score:       fmt.Sprintf("%d/%d correct", profile.CorrectAnswers, profile.TotalQuestions),
		})
	}

	return &model.StudentHistory{
		TotalQuestions:        profile.TotalQuestions,
		CorrectAnswers:        profile.CorrectAnswers,
		OverallScore:          overall,
		TopicsAttempted:       topics,
		DifficultyProgression: progression,
		LearningPaceHistory:   paceHistory,
		RecentActivity:        recentActivity,
		LastActivity:          profile.LastActivity.Format(time.RFC3339),
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
