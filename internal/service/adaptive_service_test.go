package service

import (
	"errors"
	"fmt"
	"os"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/logger"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeProfileStore 内存画像存储，可注入读写错误
type fakeProfileStore struct {
	profiles map[string]*model.StudentProfile
	getErr   error
	putErr   error
	putCalls int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]*model.StudentProfile)}
}

func (f *fakeProfileStore) Get(userID string) (*model.StudentProfile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.profiles[userID], nil
}

func (f *fakeProfileStore) Put(profile *model.StudentProfile) error {
	f.putCalls++
	if f.putErr != nil {
		return f.putErr
	}
	f.profiles[profile.UserID] = profile
	return nil
}

func attempt(topic string, difficulty model.Difficulty, correct bool) model.QuestionAttempt {
	return model.QuestionAttempt{
		QuestionID:     "q1",
		Topic:          topic,
		Difficulty:     difficulty,
		CognitiveLevel: model.CognitiveRecall,
		Correct:        correct,
		TimeTaken:      30,
	}
}

func TestRecordAttempt_CountInvariants(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 7; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, i%2 == 0))
	}

	profile := store.profiles["u1"]
	require.NotNil(t, profile)
	assert.Equal(t, 7, profile.TotalQuestions)
	assert.Equal(t, 4, profile.CorrectAnswers)
	assert.LessOrEqual(t, profile.CorrectAnswers, profile.TotalQuestions)
	assert.Equal(t, 7, store.putCalls, "every attempt must be persisted write-through")
}

func TestRecordAttempt_BucketsPreInitialized(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	svc.RecordAttempt("u1", attempt("Science", model.DifficultyHard, true))

	buckets := store.profiles["u1"].TopicPerformance["Science"]
	require.NotNil(t, buckets)
	// 三个难度桶必须同时存在
	for _, d := range model.Difficulties {
		require.NotNil(t, buckets[d], "bucket %s missing", d)
	}
	assert.Equal(t, 1, buckets[model.DifficultyHard].Total)
	assert.Equal(t, 1, buckets[model.DifficultyHard].Correct)
	assert.Equal(t, 0, buckets[model.DifficultyEasy].Total)
}

func TestRecordAttempt_RecentTimesFIFO(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 1; i <= 21; i++ {
		a := attempt("Math", model.DifficultyEasy, true)
		a.TimeTaken = float64(i)
		svc.RecordAttempt("u1", a)
	}

	times := store.profiles["u1"].RecentTimes
	require.Len(t, times, 20)
	// 第 21 次写入后最旧的 1.0 被淘汰
	assert.Equal(t, 2.0, times[0])
	assert.Equal(t, 21.0, times[19])
}

func TestRecordAttempt_LearningPace(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	a := attempt("Math", model.DifficultyEasy, true)
	a.TimeTaken = 30
	svc.RecordAttempt("u1", a)

	// 平均 30 秒一题 → 每分钟 2 题
	assert.InDelta(t, 2.0, store.profiles["u1"].LearningPace, 1e-9)
}

func TestRecordAttempt_PersistenceFailureSwallowed(t *testing.T) {
	store := newFakeProfileStore()
	store.putErr = errors.New("disk full")
	svc := NewAdaptiveService(store)

	// 不能 panic 也不能对调用方报错
	svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, true))
	assert.Equal(t, 1, store.putCalls)
}

func TestGetRecommendedDifficulty_ColdStart(t *testing.T) {
	svc := NewAdaptiveService(newFakeProfileStore())
	assert.Equal(t, model.DifficultyMedium, svc.GetRecommendedDifficulty("nobody", "Math"))
}

func TestGetRecommendedDifficulty_UnknownTopicFallsBackToGlobal(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// 全做对 medium，全局偏好升到 medium
	for i := 0; i < 3; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, true))
	}

	assert.Equal(t, model.DifficultyMedium, svc.GetRecommendedDifficulty("u1", "Chemistry"))
}

func TestGetRecommendedDifficulty_MinAttemptsGate(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// hard 桶 2 次全对：样本不足，不能推荐 hard
	svc.RecordAttempt("u1", attempt("Math", model.DifficultyHard, true))
	svc.RecordAttempt("u1", attempt("Math", model.DifficultyHard, true))

	got := svc.GetRecommendedDifficulty("u1", "Math")
	assert.NotEqual(t, model.DifficultyHard, got)
}

func TestGetRecommendedDifficulty_MediumScenario(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// 3 easy 全对 + 3 medium 全对，hard 无答题 → medium
	for i := 0; i < 3; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, true))
	}
	for i := 0; i < 3; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, true))
	}

	assert.Equal(t, model.DifficultyMedium, svc.GetRecommendedDifficulty("u1", "Math"))
}

func TestGetRecommendedDifficulty_HardWhenEarned(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 4; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyHard, true))
	}

	assert.Equal(t, model.DifficultyHard, svc.GetRecommendedDifficulty("u1", "Math"))
}

func TestGetRecommendedDifficulty_ReadIsIdempotent(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 5; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, i != 0))
	}

	first := svc.GetRecommendedDifficulty("u1", "Math")
	second := svc.GetRecommendedDifficulty("u1", "Math")
	assert.Equal(t, first, second)
}

func TestGenerateAdaptiveQuestions_EscalatesOnHotStreak(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// 近 10 次正确率 100% > 0.80 → 升到 hard
	for i := 0; i < 10; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, true))
	}

	plan := svc.GenerateAdaptiveQuestions("u1", "Math", 5)
	assert.Equal(t, model.DifficultyHard, plan.RecommendedDifficulty)
	assert.Equal(t, 5, plan.NumQuestions)
	assert.Contains(t, plan.AdaptiveReasoning, "Math")
	assert.Contains(t, plan.AdaptiveReasoning, "hard")
}

func TestGenerateAdaptiveQuestions_DeescalatesOnColdStreak(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// 先建立 medium 基线
	for i := 0; i < 6; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, true))
	}
	// 随后连错 10 次，近期正确率 0 < 0.40 → 降到 easy
	for i := 0; i < 10; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, false))
	}

	plan := svc.GenerateAdaptiveQuestions("u1", "Math", 3)
	assert.Equal(t, model.DifficultyEasy, plan.RecommendedDifficulty)
}

func TestGenerateAdaptiveQuestions_KeepsBaselineInBetween(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// 近期正确率 0.6，既不升也不降
	for i := 0; i < 10; i++ {
		svc.RecordAttempt("u1", attempt("Math", model.DifficultyMedium, i%5 < 3))
	}

	baseline := svc.GetRecommendedDifficulty("u1", "Math")
	plan := svc.GenerateAdaptiveQuestions("u1", "Math", 5)
	assert.Equal(t, baseline, plan.RecommendedDifficulty)
}

func TestWeakTopics_ExcludesLowSampleTopics(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	// Algebra 4 次全错：样本不足，不得出现在弱项里
	for i := 0; i < 4; i++ {
		svc.RecordAttempt("u1", attempt("Algebra", model.DifficultyEasy, false))
	}
	// Geometry 6 次，2 对 4 错：计入
	for i := 0; i < 6; i++ {
		svc.RecordAttempt("u1", attempt("Geometry", model.DifficultyEasy, i < 2))
	}

	weak := svc.WeakTopics("u1", 5)
	require.Len(t, weak, 1)
	assert.Equal(t, "Geometry", weak[0].Topic)
	assert.InDelta(t, 2.0/6.0, weak[0].Score, 1e-9)
}

func TestWeakTopics_SortedAscending(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 5; i++ {
		svc.RecordAttempt("u1", attempt("Strong", model.DifficultyEasy, true))
	}
	for i := 0; i < 5; i++ {
		svc.RecordAttempt("u1", attempt("Weak", model.DifficultyEasy, false))
	}

	weak := svc.WeakTopics("u1", 2)
	require.Len(t, weak, 2)
	assert.Equal(t, "Weak", weak[0].Topic)
	assert.Equal(t, "Strong", weak[1].Topic)
}

func TestStrengthAnalysis_ColdStart(t *testing.T) {
	svc := NewAdaptiveService(newFakeProfileStore())

	analysis := svc.StrengthAnalysis("nobody")
	assert.Zero(t, analysis.OverallScore)
	assert.Zero(t, analysis.TotalQuestions)
	assert.Equal(t, model.DifficultyMedium, analysis.PreferredDifficulty)
	assert.Empty(t, analysis.WeakTopics)
}

func TestStrengthAnalysis_RecommendationTiers(t *testing.T) {
	cases := []struct {
		name    string
		correct int
		total   int
		want    string
	}{
		{"remedial", 2, 10, "fundamental concepts"},
		{"application", 6, 10, "application-based"},
		{"challenge", 9, 10, "Challenge yourself"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeProfileStore()
			svc := NewAdaptiveService(store)
			for i := 0; i < tc.total; i++ {
				svc.RecordAttempt("u1", attempt(fmt.Sprintf("T%d", i%2), model.DifficultyEasy, i < tc.correct))
			}

			analysis := svc.StrengthAnalysis("u1")
			require.NotEmpty(t, analysis.Recommendations)
			assert.Contains(t, analysis.Recommendations[0], tc.want)
		})
	}
}

func TestStrengthAnalysis_CognitiveLevelCounts(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 3; i++ {
		a := attempt("Math", model.DifficultyEasy, true)
		a.CognitiveLevel = model.CognitiveApplication
		svc.RecordAttempt("u1", a)
	}
	svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, true))

	analysis := svc.StrengthAnalysis("u1")
	assert.Equal(t, 3, analysis.CognitiveLevels[model.CognitiveApplication])
	assert.Equal(t, 1, analysis.CognitiveLevels[model.CognitiveRecall])
}

func TestStudentHistory_PaceHistoryAndProgression(t *testing.T) {
	store := newFakeProfileStore()
	svc := NewAdaptiveService(store)

	for i := 0; i < 6; i++ {
		a := attempt("Math", model.DifficultyMedium, true)
		a.TimeTaken = 20
		svc.RecordAttempt("u1", a)
	}

	history := svc.StudentHistory("u1")
	assert.Equal(t, []string{"Math"}, history.TopicsAttempted)
	require.Len(t, history.LearningPaceHistory, 6)
	// 20 秒一题 → 每分钟 3 题
	assert.InDelta(t, 3.0, history.LearningPaceHistory[5].Pace, 1e-9)

	progress := history.DifficultyProgression["Math"][model.DifficultyMedium]
	assert.Equal(t, 6, progress.Total)
	assert.Equal(t, 6, progress.Correct)
	// 没有答题的桶不进进度表
	_, hasEasy := history.DifficultyProgression["Math"][model.DifficultyEasy]
	assert.False(t, hasEasy)
}

func TestRecordAttempt_StoreReadFailureStartsFresh(t *testing.T) {
	store := newFakeProfileStore()
	store.getErr = errors.New("connection refused")
	svc := NewAdaptiveService(store)

	// 读失败降级为冷启动画像，不 panic
	svc.RecordAttempt("u1", attempt("Math", model.DifficultyEasy, true))
	assert.Equal(t, 1, store.putCalls)
}
