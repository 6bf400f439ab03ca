package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"smart_edu_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 为每段文本返回固定维度的占位向量
type fakeEmbedder struct {
	err   error
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeVectorIndex 内存向量库，记录写入并返回脚本化查询结果
type fakeVectorIndex struct {
	counts      map[string]int
	countErr    error
	queryResult *VectorQueryResult
	queryErr    error
	addErr      error

	added   map[string][]string // collection → ids
	deleted map[string]map[string]interface{}
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{
		counts:  make(map[string]int),
		added:   make(map[string][]string),
		deleted: make(map[string]map[string]interface{}),
	}
}

func (f *fakeVectorIndex) Add(_ context.Context, collection string, ids []string, _ [][]float64, _ []string, _ []map[string]interface{}) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[collection] = append(f.added[collection], ids...)
	return nil
}

func (f *fakeVectorIndex) Query(_ context.Context, _ string, _ []float64, _ int, _ map[string]interface{}) (*VectorQueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryResult, nil
}

func (f *fakeVectorIndex) Count(_ context.Context, collection string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[collection], nil
}

func (f *fakeVectorIndex) DeleteWhere(_ context.Context, collection string, where map[string]interface{}) error {
	f.deleted[collection] = where
	return nil
}

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText("", 500, 50))
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("A short paragraph about cells.", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph about cells.", chunks[0])
}

func TestChunkText_BreaksAtSentenceBoundary(t *testing.T) {
	first := strings.Repeat("a", 80) + "."
	second := " " + strings.Repeat("b", 100) + "."
	chunks := ChunkText(first+second, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	// 第一个分片在句号处截断，而不是硬切 100 字符
	assert.Equal(t, first, chunks[0])
}

func TestChunkText_NormalizesWhitespace(t *testing.T) {
	chunks := ChunkText("line one\nline   two\r\nline three", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "line one line two line three", chunks[0])
}

func TestChunkText_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100, 20)

	require.GreaterOrEqual(t, len(chunks), 2)
	// 相邻分片共享结尾的 overlap 字符
	tail := chunks[0][len(chunks[0])-20:]
	assert.True(t, strings.HasPrefix(chunks[1], tail))
}

func TestChunkText_DensePunctuationTerminates(t *testing.T) {
	// 句号密集时句末截断点可能落在 overlap 区域内，
	// 切分必须仍然前进并覆盖到文本末尾
	text := strings.TrimSpace(strings.Repeat("Aa. ", 200))
	chunks := ChunkText(text, 100, 10)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(last, "Aa."))

	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		total += len(c)
	}
	// 含 overlap 的总量不应超过原文加每片的重叠上限
	assert.LessOrEqual(t, total, len(text)+len(chunks)*10)
}

func TestChunkText_KeepsMultibyteRunesIntact(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("हिंदी व्याकरण का पाठ। ", 60))
	chunks := ChunkText(text, 500, 50)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d contains split runes", i)
		assert.LessOrEqual(t, len([]rune(c)), 500)
	}
	// 首尾内容都要被覆盖
	assert.True(t, strings.HasPrefix(chunks[0], "हिंदी"))
	assert.Contains(t, chunks[len(chunks)-1], "पाठ।")
}

func TestAddDocumentContent_FansOutToCollections(t *testing.T) {
	index := newFakeVectorIndex()
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	n, err := svc.AddDocumentContent(context.Background(), "notes.pdf", "Algebra basics.", map[string]interface{}{"grade": 8}, "mathematics")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 主集合、统一知识库、学科集合各写一份
	assert.Contains(t, index.added, "curriculum_content")
	assert.Contains(t, index.added, "unified_knowledge")
	assert.Contains(t, index.added, "subject_mathematics")
	assert.Equal(t, []string{"notes.pdf_chunk_0"}, index.added["curriculum_content"])
}

func TestAddDocumentContent_UnknownSubjectSkipsSubjectCollection(t *testing.T) {
	index := newFakeVectorIndex()
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	_, err := svc.AddDocumentContent(context.Background(), "notes.pdf", "Some general text.", nil, "general")
	require.NoError(t, err)

	assert.Contains(t, index.added, "curriculum_content")
	assert.Contains(t, index.added, "unified_knowledge")
	for collection := range index.added {
		assert.False(t, strings.HasPrefix(collection, "subject_"), "unexpected subject collection %s", collection)
	}
}

func TestAddDocumentContent_EmptyTextFails(t *testing.T) {
	svc := NewRetrievalService(&fakeEmbedder{}, newFakeVectorIndex())

	_, err := svc.AddDocumentContent(context.Background(), "empty.pdf", "   ", nil, "science")
	assert.Error(t, err)
}

func TestAddDocumentContent_EmbedFailurePropagates(t *testing.T) {
	svc := NewRetrievalService(&fakeEmbedder{err: errors.New("model offline")}, newFakeVectorIndex())

	_, err := svc.AddDocumentContent(context.Background(), "notes.pdf", "Some text.", nil, "science")
	assert.Error(t, err)
}

func TestAddDocumentContent_CollectionWriteFailureTolerated(t *testing.T) {
	index := newFakeVectorIndex()
	index.addErr = errors.New("collection unavailable")
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	// 单集合写失败只记日志，调用仍然成功
	n, err := svc.AddDocumentContent(context.Background(), "notes.pdf", "Some text.", nil, "science")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchRelevantContent_EmptyIndexShortCircuits(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newFakeVectorIndex() // 所有集合计数为 0
	svc := NewRetrievalService(embedder, index)

	results := svc.SearchRelevantContent(context.Background(), "photosynthesis", 5, "")

	assert.Empty(t, results)
	// 空索引不应触发向量化
	assert.Empty(t, embedder.calls)
}

func TestSearchRelevantContent_PackagesResults(t *testing.T) {
	index := newFakeVectorIndex()
	index.counts["unified_knowledge"] = 10
	index.queryResult = &VectorQueryResult{
		IDs:       []string{"a_chunk_0", "b_chunk_1"},
		Documents: []string{"doc a", "doc b"},
		Metadatas: []map[string]interface{}{{"filename": "a.pdf"}, {"filename": "b.pdf"}},
		Distances: []float64{0.12, 0.34},
	}
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	results := svc.SearchRelevantContent(context.Background(), "q", 5, "")

	require.Len(t, results, 2)
	assert.Equal(t, model.RetrievedChunk{
		ID:       "a_chunk_0",
		Content:  "doc a",
		Metadata: map[string]interface{}{"filename": "a.pdf"},
		Distance: 0.12,
	}, results[0])
	assert.Equal(t, "b_chunk_1", results[1].ID)
}

func TestSearchRelevantContent_SubjectRouting(t *testing.T) {
	index := newFakeVectorIndex()
	index.counts["subject_science"] = 3
	index.queryResult = &VectorQueryResult{
		IDs:       []string{"s1"},
		Documents: []string{"science doc"},
		Metadatas: []map[string]interface{}{{}},
		Distances: []float64{0.2},
	}
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	// Science 大小写不敏感地路由到学科集合
	results := svc.SearchRelevantContent(context.Background(), "q", 5, "Science")
	assert.Len(t, results, 1)

	// 未知学科回落到统一知识库（计数 0 → 空结果）
	results = svc.SearchRelevantContent(context.Background(), "q", 5, "astrology")
	assert.Empty(t, results)
}

func TestSearchRelevantContent_QueryFailureReturnsEmpty(t *testing.T) {
	index := newFakeVectorIndex()
	index.counts["unified_knowledge"] = 5
	index.queryErr = errors.New("index corrupted")
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	assert.Empty(t, svc.SearchRelevantContent(context.Background(), "q", 5, ""))
}

func TestSearchAcrossSubjects_MergesAndSorts(t *testing.T) {
	index := newFakeVectorIndex()
	index.counts["subject_mathematics"] = 1
	index.counts["subject_science"] = 1
	index.queryResult = &VectorQueryResult{
		IDs:       []string{"x"},
		Documents: []string{"doc"},
		Metadatas: []map[string]interface{}{{}},
		Distances: []float64{0.5},
	}
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	out := svc.SearchAcrossSubjects(context.Background(), "q", []string{"mathematics", "science", "astrology"}, 5)

	results := out["results"].([]model.RetrievedChunk)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, []interface{}{"mathematics", "science"}, r.Metadata["subject"])
	}

	breakdown := out["subject_breakdown"].(map[string]int)
	assert.Equal(t, 1, breakdown["mathematics"])
	assert.Equal(t, 1, breakdown["science"])
	// 未知学科被跳过
	_, ok := breakdown["astrology"]
	assert.False(t, ok)
}

func TestDeleteDocumentContent_TargetsAllCollections(t *testing.T) {
	index := newFakeVectorIndex()
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	err := svc.DeleteDocumentContent(context.Background(), "notes.pdf")
	require.NoError(t, err)

	assert.Len(t, index.deleted, 2+len(Subjects))
	assert.Equal(t, map[string]interface{}{"filename": "notes.pdf"}, index.deleted["unified_knowledge"])
	assert.Equal(t, map[string]interface{}{"filename": "notes.pdf"}, index.deleted["subject_hindi"])
}

func TestStats(t *testing.T) {
	index := newFakeVectorIndex()
	index.counts["curriculum_content"] = 42
	index.counts["unified_knowledge"] = 100
	svc := NewRetrievalService(&fakeEmbedder{}, index)

	stats := svc.Stats(context.Background())
	assert.Equal(t, 42, stats["total_content_chunks"])
	assert.Equal(t, 100, stats["unified_chunks"])
}

func TestClassifySubject(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Solve the equation using the quadratic formula", "mathematics"},
		{"The experiment tested the hypothesis about molecule bonding", "science"},
		{"The ancient empire fell after a long war", "history"},
		{"Rivers and mountains shape the climate of a continent", "geography"},
		{"Practice grammar and vocabulary with this poem", "english"},
		{"यह हिंदी व्याकरण का पाठ है", "hindi"},
		{"Good morning everyone", "general"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifySubject(tc.text), "text: %s", tc.text)
	}
}
