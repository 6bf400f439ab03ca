package controller

import (
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type QAController struct {
	ragService *service.RAGService
}

func NewQAController(ragService *service.RAGService) *QAController {
	return &QAController{ragService: ragService}
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
	UserID   string `json:"userId"`
}

// Ask 课程知识库问答
// @Summary 学生提问
// @Description 检索课程内容并生成回答；检索不可信时退回通识回答。未登录也可提问，仅登录用户记入历史
// @Tags QA
// @Accept json
// @Produce json
// @Param request body AskRequest true "问题内容"
// @Success 200 {object} util.Response
// @Router /qa/ask [post]
func (c *QAController) Ask(ctx *gin.Context) {
	var req AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		util.BadRequest(ctx, util.ErrEmptyQuestion.Error())
		return
	}

	// 已认证时以 token 身份为准，匿名请求不写入历史
	userID := req.UserID
	if claims := util.GetUserFromContext(ctx); claims != nil {
		userID = claims.SubjectID()
	}

	result := c.ragService.ProcessQuestion(ctx.Request.Context(), req.Question, userID)
	util.Success(ctx, result)
}

// History 问答历史
// @Summary 用户问答历史
// @Tags QA
// @Produce json
// @Param userId query string true "学生ID"
// @Param limit query int false "返回数量，默认10"
// @Success 200 {object} util.Response
// @Router /qa/history [get]
func (c *QAController) History(ctx *gin.Context) {
	userID := ctx.Query("userId")
	if userID == "" {
		util.BadRequest(ctx, "userId is required")
		return
	}

	limit := 10
	if v := ctx.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := c.ragService.History(ctx.Request.Context(), userID, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, records)
}
