package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"smart_edu_backend/internal/config"
	"sync"
	"time"
)

// VectorQueryResult 单次最近邻查询的扁平化结果，按距离升序
type VectorQueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]interface{}
	Distances []float64
}

// VectorService Chroma REST 协议的向量库客户端。
// 集合按名字惰性创建，名字到 id 的映射进程内缓存。
type VectorService struct {
	config config.VectorDBConfig
	client *http.Client

	mu          sync.Mutex
	collections map[string]string // name -> collection id
}

func NewVectorService(cfg config.VectorDBConfig) *VectorService {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &VectorService{
		config:      cfg,
		client:      &http.Client{Timeout: timeout},
		collections: make(map[string]string),
	}
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collectionsPath 集合接口路径，配置了租户/库时作为查询参数带上
func (s *VectorService) collectionsPath() string {
	path := "/api/v1/collections"

	params := url.Values{}
	if s.config.Tenant != "" {
		params.Set("tenant", s.config.Tenant)
	}
	if s.config.Database != "" {
		params.Set("database", s.config.Database)
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return path
}

// ensureCollection get-or-create 集合，返回集合 id
func (s *VectorService) ensureCollection(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if id, ok := s.collections[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	body := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
	}
	var col collectionResponse
	if err := s.post(ctx, s.collectionsPath(), body, &col); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.collections[name] = col.ID
	s.mu.Unlock()
	return col.ID, nil
}

// Add 批量写入文档与向量
func (s *VectorService) Add(ctx context.Context, collection string, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]interface{}) error {
	colID, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/add", colID), body, nil)
}

type chromaQueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// Query 最近邻检索，where 为可选的元数据等值过滤
func (s *VectorService) Query(ctx context.Context, collection string, embedding []float64, k int, where map[string]interface{}) (*VectorQueryResult, error) {
	colID, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"query_embeddings": [][]float64{embedding},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		body["where"] = where
	}

	var parsed chromaQueryResponse
	if err := s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", colID), body, &parsed); err != nil {
		return nil, err
	}

	result := &VectorQueryResult{}
	if len(parsed.IDs) > 0 {
		result.IDs = parsed.IDs[0]
	}
	if len(parsed.Documents) > 0 {
		result.Documents = parsed.Documents[0]
	}
	if len(parsed.Metadatas) > 0 {
		result.Metadatas = parsed.Metadatas[0]
	}
	if len(parsed.Distances) > 0 {
		result.Distances = parsed.Distances[0]
	}
	return result, nil
}

// Count 集合内条目数
func (s *VectorService) Count(ctx context.Context, collection string) (int, error) {
	colID, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.config.BaseURL+fmt.Sprintf("/api/v1/collections/%s/count", colID), nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("vector DB error (status %d): %s", resp.StatusCode, string(body))
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteWhere 按元数据过滤删除
func (s *VectorService) DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error {
	colID, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"where": where,
	}
	return s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/delete", colID), body, nil)
}

func (s *VectorService) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vector DB error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
