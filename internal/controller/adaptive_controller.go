package controller

import (
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type AdaptiveController struct {
	adaptiveService *service.AdaptiveService
}

func NewAdaptiveController(adaptiveService *service.AdaptiveService) *AdaptiveController {
	return &AdaptiveController{adaptiveService: adaptiveService}
}

type RecordAttemptRequest struct {
	UserID  string                `json:"userId" binding:"required"`
	Attempt model.QuestionAttempt `json:"attempt" binding:"required"`
}

// RecordAttempt 记录一次答题
// @Summary 记录答题结果
// @Description 记录学生的一次答题，更新学习画像并重算推荐难度
// @Tags Adaptive
// @Accept json
// @Produce json
// @Param request body RecordAttemptRequest true "答题记录"
// @Success 200 {object} util.Response
// @Router /adaptive/attempts [post]
func (c *AdaptiveController) RecordAttempt(ctx *gin.Context) {
	var req RecordAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	// 枚举在入口处校验，核心逻辑假定桶值合法
	if !req.Attempt.Difficulty.Valid() {
		util.BadRequest(ctx, util.ErrInvalidDifficulty.Error())
		return
	}
	if !req.Attempt.CognitiveLevel.Valid() {
		util.BadRequest(ctx, util.ErrInvalidCognitive.Error())
		return
	}

	if req.Attempt.Timestamp.IsZero() {
		req.Attempt.Timestamp = time.Now()
	}

	c.adaptiveService.RecordAttempt(req.UserID, req.Attempt)
	util.Success(ctx, gin.H{"recorded": true})
}

// GetRecommendedDifficulty 查询推荐难度
// @Summary 查询推荐难度
// @Description 返回学生在指定话题（可选）下的推荐难度
// @Tags Adaptive
// @Produce json
// @Param userId query string true "学生ID"
// @Param topic query string false "话题"
// @Success 200 {object} util.Response
// @Router /adaptive/recommendation [get]
func (c *AdaptiveController) GetRecommendedDifficulty(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		util.BadRequest(ctx, "userId is required")
		return
	}
	topic := ctx.Query("topic")

	difficulty := c.adaptiveService.GetRecommendedDifficulty(userID, topic)
	util.Success(ctx, gin.H{"recommendedDifficulty": difficulty})
}

type AdaptiveQuestionsRequest struct {
	UserID       string `json:"userId" binding:"required"`
	Topic        string `json:"topic" binding:"required"`
	NumQuestions int    `json:"numQuestions"`
}

// GenerateAdaptiveQuestions 生成下一批题目的难度决策
// @Summary 自适应出题决策
// @Description 结合长期画像与近期表现给出下一批题目的难度
// @Tags Adaptive
// @Accept json
// @Produce json
// @Param request body AdaptiveQuestionsRequest true "出题请求"
// @Success 200 {object} util.Response
// @Router /adaptive/questions [post]
func (c *AdaptiveController) GenerateAdaptiveQuestions(ctx *gin.Context) {
	var req AdaptiveQuestionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if req.NumQuestions <= 0 {
		req.NumQuestions = 5
	}

	plan := c.adaptiveService.GenerateAdaptiveQuestions(req.UserID, req.Topic, req.NumQuestions)
	util.Success(ctx, plan)
}

// GetStrengthAnalysis 能力画像
// @Summary 学生能力画像
// @Description 总体正确率、弱项话题、认知层级分布与学习建议
// @Tags Adaptive
// @Produce json
// @Param userId query string true "学生ID"
// @Success 200 {object} util.Response
// @Router /adaptive/analysis [get]
func (c *AdaptiveController) GetStrengthAnalysis(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		util.BadRequest(ctx, "userId is required")
		return
	}

	util.Success(ctx, c.adaptiveService.StrengthAnalysis(userID))
}

// GetWeakTopics 弱项话题
// @Summary 弱项话题列表
// @Tags Adaptive
// @Produce json
// @Param userId query string true "学生ID"
// @Param limit query int false "返回数量，默认5"
// @Success 200 {object} util.Response
// @Router /adaptive/weak-topics [get]
func (c *AdaptiveController) GetWeakTopics(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		util.BadRequest(ctx, "userId is required")
		return
	}

	limit := 5
	if v := ctx.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	util.Success(ctx, c.adaptiveService.WeakTopics(userID, limit))
}

// GetStudentHistory 学习历史
// @Summary 学习历史与进度
// @Tags Adaptive
// @Produce json
// @Param userId query string true "学生ID"
// @Success 200 {object} util.Response
// @Router /adaptive/history [get]
func (c *AdaptiveController) GetStudentHistory(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		util.BadRequest(ctx, "userId is required")
		return
	}

	util.Success(ctx, c.adaptiveService.StudentHistory(userID))
}
