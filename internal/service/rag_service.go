package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	retrievalTopK = 5

	// 置信度低于该值时放弃课程内容，退回通识回答
	curriculumConfidenceGate = 0.3
	// 有检索结果时置信度的下限
	confidenceFloor = 0.1
	// 通识回答统一上报的置信度，与进入原因无关
	generalKnowledgeConfidence = 0.7

	generalKnowledgeSource = "General Knowledge"
)

// Generator 文本生成抽象，由 AIService 实现
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever 内容检索抽象，由 RetrievalService 实现
type Retriever interface {
	SearchRelevantContent(ctx context.Context, query string, topK int, subject string) []model.RetrievedChunk
}

// AnswerStore 问答历史持久化抽象，由 repository.AnswerRepository 实现
type AnswerStore interface {
	Create(record *model.AnswerRecord) error
	FindByUser(ctx context.Context, userID string, limit int) ([]model.AnswerRecord, error)
}

// RAGService 置信度门控的问答管线：检索课程内容，可信则据此作答，
// 不可信或查不到则退回通识回答，生成失败一律转成 error 结果返回。
type RAGService struct {
	retriever Retriever
	generator Generator
	answers   AnswerStore
}

func NewRAGService(retriever Retriever, generator Generator, answers AnswerStore) *RAGService {
	return &RAGService{
		retriever: retriever,
		generator: generator,
		answers:   answers,
	}
}

// ProcessQuestion 处理一个学生问题。对调用方永不报错：
// 任何内部失败都折叠为 answer_type=error 的可用结果。
func (s *RAGService) ProcessQuestion(ctx context.Context, query, userID string) *model.AnswerResult {
	chunks := s.retriever.SearchRelevantContent(ctx, query, retrievalTopK, "")

	result := s.generateAnswerWithContext(ctx, query, chunks)

	// 错误结果不入历史
	if userID != "" && result.AnswerType != model.AnswerError {
		s.saveAnswer(query, result, userID)
	}

	monitoring.AnswerCounter.WithLabelValues(string(result.AnswerType)).Inc()
	return result
}

func (s *RAGService) generateAnswerWithContext(ctx context.Context, query string, chunks []model.RetrievedChunk) *model.AnswerResult {
	if len(chunks) == 0 {
		// 课程库完全没有相关内容，直接走通识
		return s.generalKnowledgeAnswer(ctx, query, nil)
	}

	var distanceSum float64
	for _, chunk := range chunks {
		distanceSum += chunk.Distance
	}
	avgDistance := distanceSum / float64(len(chunks))
	confidence := math.Max(confidenceFloor, 1.0-avgDistance)

	if confidence < curriculumConfidenceGate {
		logger.Log.Info("low retrieval confidence, falling back to general knowledge",
			zap.Float64("confidence", confidence))
		return s.generalKnowledgeAnswer(ctx, query, chunks)
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}
	contextText := strings.Join(contents, "\n\n")

	prompt := fmt.Sprintf(`Based on the following curriculum content, please answer the student's question accurately and helpfully.

Context from curriculum:
%s

Student's Question: %s

Please provide:
1. A clear, accurate answer based on the curriculum content
2. Additional explanation if needed
3. Any important concepts the student should understand

Answer:`, contextText, query)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Log.Error("failed to generate curriculum answer", zap.Error(err))
		return errorResult()
	}

	return &model.AnswerResult{
		Answer:            answer,
		Confidence:        round2(confidence),
		Sources:           dedupSources(chunks),
		ContextChunkCount: len(chunks),
		AnswerType:        model.AnswerCurriculumBased,
	}
}

// generalKnowledgeAnswer 通识回答。chunks 非空时取最相关的 2 个片段作为
// 非权威提示注入提示词；无论因何进入，置信度固定上报 0.7。
func (s *RAGService) generalKnowledgeAnswer(ctx context.Context, query string, chunks []model.RetrievedChunk) *model.AnswerResult {
	var prompt string
	if len(chunks) > 0 {
		hints := chunks
		if len(hints) > 2 {
			hints = hints[:2]
		}
		contents := make([]string, len(hints))
		for i, chunk := range hints {
			contents[i] = chunk.Content
		}

		prompt = fmt.Sprintf(`The student asked: %s

I have some related curriculum content, but it may not be directly relevant:
%s

Please provide a comprehensive answer using your general knowledge. If the curriculum content is relevant, incorporate it. If not, provide a thorough explanation based on general knowledge.

Please include:
1. A clear, accurate answer
2. Additional context and explanations
3. Related concepts that might be helpful
4. Suggestions for further learning if applicable

Answer:`, query, strings.Join(contents, "\n\n"))
	} else {
		prompt = fmt.Sprintf(`The student asked: %s

Please provide a comprehensive answer using your general knowledge. This appears to be a general question not covered in the uploaded curriculum materials.

Please include:
1. A clear, accurate answer
2. Additional context and explanations
3. Related concepts that might be helpful
4. Suggestions for further learning if applicable

Answer:`, query)
	}

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Log.Error("failed to generate general knowledge answer", zap.Error(err))
		return errorResult()
	}

	return &model.AnswerResult{
		Answer:            answer,
		Confidence:        generalKnowledgeConfidence,
		Sources:           []string{generalKnowledgeSource},
		ContextChunkCount: len(chunks),
		AnswerType:        model.AnswerGeneralKnowledge,
	}
}

// saveAnswer 问答历史落库，主键为内容哈希；失败只记日志，不影响本次请求
func (s *RAGService) saveAnswer(query string, result *model.AnswerResult, userID string) {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%s", userID, query, time.Now().Format(time.RFC3339Nano))))

	record := &model.AnswerRecord{
		ID:                hex.EncodeToString(sum[:]),
		UserID:            userID,
		Question:          query,
		Answer:            result.Answer,
		AnswerType:        result.AnswerType,
		Confidence:        result.Confidence,
		Sources:           result.Sources,
		ContextChunkCount: result.ContextChunkCount,
		CreatedAt:         time.Now(),
	}

	if err := s.answers.Create(record); err != nil {
		logger.Log.Warn("failed to save answer history",
			zap.String("userId", userID), zap.Error(err))
	}
}

// History 用户最近的问答记录
func (s *RAGService) History(ctx context.Context, userID string, limit int) ([]model.AnswerRecord, error) {
	return s.answers.FindByUser(ctx, userID, limit)
}

func errorResult() *model.AnswerResult {
	return &model.AnswerResult{
		Answer:     "I'm sorry, I encountered an error while processing your question. Please try again.",
		Confidence: 0.0,
		Sources:    []string{},
		AnswerType: model.AnswerError,
	}
}

// dedupSources 去重的来源文档名，保持首次出现的顺序
func dedupSources(chunks []model.RetrievedChunk) []string {
	seen := make(map[string]bool, len(chunks))
	sources := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		name := "Unknown"
		if chunk.Metadata != nil {
			if v, ok := chunk.Metadata["filename"].(string); ok && v != "" {
				name = v
			}
		}
		if !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}

	return sources
}
