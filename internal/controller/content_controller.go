package controller

import (
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type ContentController struct {
	retrievalService *service.RetrievalService
	storageService   *service.StorageService
}

func NewContentController(retrievalService *service.RetrievalService, storageService *service.StorageService) *ContentController {
	return &ContentController{
		retrievalService: retrievalService,
		storageService:   storageService,
	}
}

// Upload 上传课件
// @Summary 上传课件内容
// @Description 接收外部抽取好的课件文本并入库；可附带原始文件一并归档。
// @Description 未指定学科时按关键词自动归类。
// @Tags Content
// @Accept multipart/form-data
// @Produce json
// @Param filename formData string true "文档名"
// @Param text formData string true "抽取出的正文文本"
// @Param subject formData string false "学科"
// @Param file formData file false "原始文件"
// @Success 200 {object} util.Response
// @Router /content/upload [post]
func (c *ContentController) Upload(ctx *gin.Context) {
	filename := ctx.PostForm("filename")
	text := ctx.PostForm("text")
	if filename == "" || text == "" {
		util.BadRequest(ctx, "filename and text are required")
		return
	}

	subject := ctx.PostForm("subject")
	if subject == "" {
		subject = service.ClassifySubject(text)
	}

	// 原始文件可选，归档失败不阻塞入库
	var fileURL string
	if file, err := ctx.FormFile("file"); err == nil {
		src, err := file.Open()
		if err == nil {
			defer src.Close()
			fileURL, _ = c.storageService.Upload(ctx.Request.Context(), filename, src, file.Size, file.Header.Get("Content-Type"))
		}
	}

	chunkCount, err := c.retrievalService.AddDocumentContent(ctx.Request.Context(), filename, text, map[string]interface{}{
		"subject": strings.ToLower(subject),
	}, subject)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"filename":   filename,
		"subject":    strings.ToLower(subject),
		"chunkCount": chunkCount,
		"fileUrl":    fileURL,
	})
}

// Delete 删除课件
// @Summary 删除课件内容
// @Description 删除某文档在向量库中的全部片段及归档文件
// @Tags Content
// @Produce json
// @Param filename path string true "文档名"
// @Success 200 {object} util.Response
// @Router /content/{filename} [delete]
func (c *ContentController) Delete(ctx *gin.Context) {
	filename := ctx.Param("filename")
	if filename == "" {
		util.BadRequest(ctx, "filename is required")
		return
	}

	if err := c.retrievalService.DeleteDocumentContent(ctx.Request.Context(), filename); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	// 归档文件可能不存在，忽略删除失败
	c.storageService.Delete(ctx.Request.Context(), filename)

	util.Success(ctx, gin.H{"deleted": filename})
}

// Search 检索课程内容
// @Summary 检索课程内容
// @Tags Content
// @Produce json
// @Param q query string true "查询文本"
// @Param subject query string false "学科"
// @Param topK query int false "返回片段数，默认5"
// @Success 200 {object} util.Response
// @Router /content/search [get]
func (c *ContentController) Search(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		util.BadRequest(ctx, "q is required")
		return
	}

	topK := 5
	if v := ctx.Query("topK"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			topK = parsed
		}
	}

	chunks := c.retrievalService.SearchRelevantContent(ctx.Request.Context(), query, topK, ctx.Query("subject"))
	util.Success(ctx, chunks)
}

// SearchAcrossSubjects 跨学科检索
// @Summary 跨学科检索
// @Tags Content
// @Produce json
// @Param q query string true "查询文本"
// @Param subjects query string false "逗号分隔的学科列表"
// @Param topK query int false "返回片段数，默认5"
// @Success 200 {object} util.Response
// @Router /content/search-subjects [get]
func (c *ContentController) SearchAcrossSubjects(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		util.BadRequest(ctx, "q is required")
		return
	}

	var subjects []string
	if v := ctx.Query("subjects"); v != "" {
		subjects = strings.Split(v, ",")
	}

	topK := 5
	if v := ctx.Query("topK"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			topK = parsed
		}
	}

	util.Success(ctx, c.retrievalService.SearchAcrossSubjects(ctx.Request.Context(), query, subjects, topK))
}

// Stats 向量库统计
// @Summary 向量库统计
// @Tags Content
// @Produce json
// @Success 200 {object} util.Response
// @Router /content/stats [get]
func (c *ContentController) Stats(ctx *gin.Context) {
	util.Success(ctx, gin.H{
		"database": c.retrievalService.Stats(ctx.Request.Context()),
		"subjects": c.retrievalService.SubjectStats(ctx.Request.Context()),
	})
}
