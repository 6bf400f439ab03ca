package service

import (
	"context"
	"fmt"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/logger"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	contentCollection = "curriculum_content"
	unifiedCollection = "unified_knowledge"

	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// Subjects 平台支持的学科，决定分科集合的划分
var Subjects = []string{"mathematics", "science", "history", "geography", "english", "hindi"}

// Embedder 向量化抽象，由 EmbeddingService 实现
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex 向量库抽象，由 VectorService 实现
type VectorIndex interface {
	Add(ctx context.Context, collection string, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]interface{}) error
	Query(ctx context.Context, collection string, embedding []float64, k int, where map[string]interface{}) (*VectorQueryResult, error)
	Count(ctx context.Context, collection string) (int, error)
	DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error
}

// RetrievalService 课程内容检索：分片入库、按学科路由、最近邻查询
type RetrievalService struct {
	embedder Embedder
	index    VectorIndex
}

func NewRetrievalService(embedder Embedder, index VectorIndex) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		index:    index,
	}
}

func subjectCollection(subject string) string {
	return "subject_" + strings.ToLower(subject)
}

func knownSubject(subject string) bool {
	lower := strings.ToLower(subject)
	for _, s := range Subjects {
		if s == lower {
			return true
		}
	}
	return false
}

// ChunkText 按句边界切片，chunk 间保留 overlap 个字符的重叠。
// 以字符为单位切分，多字节字符不会被截断。
func ChunkText(text string, chunkSize, overlap int) []string {
	if text == "" {
		return nil
	}

	// 压平换行和多余空白
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// 优先在句末断开；下界保证截断点之后 start 仍能前进
		floor := start + chunkSize - 100
		if floor < start+overlap {
			floor = start + overlap
		}
		for i := end; i > floor; i-- {
			if c := runes[i]; c == '.' || c == '!' || c == '?' {
				end = i + 1
				break
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// AddDocumentContent 把一份文档的抽取文本切片、向量化并写入主集合、学科集合和统一知识库。
// 单个集合写入失败只记日志，不影响其余集合。
func (s *RetrievalService) AddDocumentContent(ctx context.Context, filename, text string, metadata map[string]interface{}, subject string) (int, error) {
	chunks := ChunkText(text, defaultChunkSize, defaultChunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text chunks extracted from %s", filename)
	}

	embeddings, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to create embeddings for %s: %w", filename, err)
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, chunk := range chunks {
		ids[i] = fmt.Sprintf("%s_chunk_%d", filename, i)

		chunkMetadata := map[string]interface{}{
			"filename":    filename,
			"chunk_index": i,
			"chunk_size":  len(chunk),
			"timestamp":   time.Now().Format(time.RFC3339),
			"source":      "document_upload",
		}
		for k, v := range metadata {
			chunkMetadata[k] = v
		}
		metadatas[i] = chunkMetadata
	}

	targets := []string{contentCollection, unifiedCollection}
	if knownSubject(subject) {
		targets = append(targets, subjectCollection(subject))
	}

	for _, collection := range targets {
		if err := s.index.Add(ctx, collection, ids, embeddings, chunks, metadatas); err != nil {
			logger.Log.Warn("failed to add chunks to collection",
				zap.String("collection", collection),
				zap.String("filename", filename),
				zap.Error(err))
		}
	}

	return len(chunks), nil
}

// SearchRelevantContent 检索与 query 最相关的 ≤topK 个片段，按距离升序。
// 指定已知学科时查学科集合，否则查统一知识库；空索引直接返回空结果，不报错。
func (s *RetrievalService) SearchRelevantContent(ctx context.Context, query string, topK int, subject string) []model.RetrievedChunk {
	collection := unifiedCollection
	if knownSubject(subject) {
		collection = subjectCollection(subject)
	}

	count, err := s.index.Count(ctx, collection)
	if err != nil {
		logger.Log.Warn("failed to count vector collection", zap.String("collection", collection), zap.Error(err))
		return []model.RetrievedChunk{}
	}
	if count == 0 {
		return []model.RetrievedChunk{}
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		logger.Log.Warn("failed to embed query", zap.Error(err))
		return []model.RetrievedChunk{}
	}

	result, err := s.index.Query(ctx, collection, vectors[0], topK, nil)
	if err != nil {
		logger.Log.Warn("vector query failed", zap.String("collection", collection), zap.Error(err))
		return []model.RetrievedChunk{}
	}

	chunks := make([]model.RetrievedChunk, 0, len(result.Documents))
	for i, doc := range result.Documents {
		chunk := model.RetrievedChunk{Content: doc}
		if i < len(result.IDs) {
			chunk.ID = result.IDs[i]
		}
		if i < len(result.Metadatas) {
			chunk.Metadata = result.Metadatas[i]
		}
		if i < len(result.Distances) {
			chunk.Distance = result.Distances[i]
		}
		chunks = append(chunks, chunk)
	}

	return chunks
}

// SearchAcrossSubjects 跨学科检索，合并后按距离重排取前 topK
func (s *RetrievalService) SearchAcrossSubjects(ctx context.Context, query string, subjects []string, topK int) map[string]interface{} {
	if len(subjects) == 0 {
		subjects = Subjects
	}

	breakdown := make(map[string]int, len(subjects))
	var combined []model.RetrievedChunk

	for _, subject := range subjects {
		if !knownSubject(subject) {
			continue
		}
		results := s.SearchRelevantContent(ctx, query, topK, subject)
		breakdown[strings.ToLower(subject)] = len(results)
		for _, r := range results {
			if r.Metadata == nil {
				r.Metadata = map[string]interface{}{}
			}
			r.Metadata["subject"] = strings.ToLower(subject)
			combined = append(combined, r)
		}
	}

	sort.Slice(combined, func(i, j int) bool {
		return combined[i].Distance < combined[j].Distance
	})
	if topK < len(combined) {
		combined = combined[:topK]
	}

	return map[string]interface{}{
		"query":             query,
		"subjects_searched": subjects,
		"results":           combined,
		"subject_breakdown": breakdown,
	}
}

// DeleteDocumentContent 删除某文档在所有集合中的全部片段
func (s *RetrievalService) DeleteDocumentContent(ctx context.Context, filename string) error {
	where := map[string]interface{}{"filename": filename}

	targets := []string{contentCollection, unifiedCollection}
	for _, subject := range Subjects {
		targets = append(targets, subjectCollection(subject))
	}

	var lastErr error
	for _, collection := range targets {
		if err := s.index.DeleteWhere(ctx, collection, where); err != nil {
			logger.Log.Warn("failed to delete chunks from collection",
				zap.String("collection", collection),
				zap.String("filename", filename),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// Stats 主集合与统一知识库的片段数
func (s *RetrievalService) Stats(ctx context.Context) map[string]interface{} {
	contentCount, err := s.index.Count(ctx, contentCollection)
	if err != nil {
		logger.Log.Warn("failed to count content collection", zap.Error(err))
	}
	unifiedCount, err := s.index.Count(ctx, unifiedCollection)
	if err != nil {
		logger.Log.Warn("failed to count unified collection", zap.Error(err))
	}

	return map[string]interface{}{
		"total_content_chunks": contentCount,
		"unified_chunks":       unifiedCount,
	}
}

// SubjectStats 各学科集合的片段数
func (s *RetrievalService) SubjectStats(ctx context.Context) map[string]interface{} {
	stats := make(map[string]interface{}, len(Subjects)+1)
	for _, subject := range Subjects {
		count, err := s.index.Count(ctx, subjectCollection(subject))
		if err != nil {
			logger.Log.Warn("failed to count subject collection", zap.String("subject", subject), zap.Error(err))
		}
		stats[subject] = map[string]interface{}{
			"chunks":          count,
			"collection_name": subjectCollection(subject),
		}
	}
	unifiedCount, _ := s.index.Count(ctx, unifiedCollection)
	stats["unified"] = map[string]interface{}{
		"chunks":          unifiedCount,
		"collection_name": unifiedCollection,
	}
	return stats
}

var subjectKeywords = map[string][]string{
	"mathematics": {"equation", "formula", "calculate", "solve", "number", "math", "algebra", "geometry", "trigonometry"},
	"science":     {"experiment", "hypothesis", "theory", "molecule", "atom", "chemical", "physics", "biology", "chemistry"},
	"history":     {"ancient", "century", "war", "king", "queen", "empire", "civilization", "historical", "past"},
	"geography":   {"country", "continent", "ocean", "mountain", "river", "climate", "population", "map", "location"},
	"english":     {"grammar", "literature", "poem", "novel", "sentence", "vocabulary", "writing", "reading"},
	"hindi":       {"हिंदी", "कविता", "कहानी", "व्याकरण", "साहित्य", "भाषा"},
}

// ClassifySubject 关键词计分法判定文本所属学科，无法判定时返回 general
func ClassifySubject(text string) string {
	lower := strings.ToLower(text)

	best := "general"
	bestScore := 0
	// 固定顺序遍历，保证同分时结果稳定
	for _, subject := range Subjects {
		score := 0
		for _, keyword := range subjectKeywords[subject] {
			if strings.Contains(lower, keyword) {
				score++
			}
		}
		if score > bestScore {
			best = subject
			bestScore = score
		}
	}

	return best
}
