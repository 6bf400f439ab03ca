package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"smart_edu_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chromaStub 记录收到的请求 URL，按路径返回固定响应
type chromaStub struct {
	server *httptest.Server

	mu   sync.Mutex
	urls []*url.URL
}

func newChromaStub(t *testing.T) *chromaStub {
	t.Helper()
	stub := &chromaStub{}

	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		u := *r.URL
		stub.urls = append(stub.urls, &u)
		stub.mu.Unlock()

		switch r.URL.Path {
		case "/api/v1/collections":
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "curriculum_content"})
		case "/api/v1/collections/col-1/count":
			json.NewEncoder(w).Encode(7)
		default:
			w.Write([]byte("{}"))
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *chromaStub) seen() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL{}, s.urls...)
}

func TestVectorService_CollectionScopedToTenantAndDatabase(t *testing.T) {
	stub := newChromaStub(t)
	svc := NewVectorService(config.VectorDBConfig{
		BaseURL:  stub.server.URL,
		Tenant:   "default_tenant",
		Database: "smart_edu",
	})

	err := svc.Add(context.Background(), "curriculum_content",
		[]string{"doc_chunk_0"}, [][]float64{{0.1, 0.2}}, []string{"text"}, []map[string]interface{}{{"filename": "doc"}})
	require.NoError(t, err)

	urls := stub.seen()
	require.GreaterOrEqual(t, len(urls), 2)
	assert.Equal(t, "/api/v1/collections", urls[0].Path)
	assert.Equal(t, "default_tenant", urls[0].Query().Get("tenant"))
	assert.Equal(t, "smart_edu", urls[0].Query().Get("database"))
	assert.Equal(t, "/api/v1/collections/col-1/add", urls[1].Path)
}

func TestVectorService_NoTenantOmitsParams(t *testing.T) {
	stub := newChromaStub(t)
	svc := NewVectorService(config.VectorDBConfig{BaseURL: stub.server.URL})

	_, err := svc.Count(context.Background(), "curriculum_content")
	require.NoError(t, err)

	assert.Empty(t, stub.seen()[0].RawQuery)
}

func TestVectorService_CachesCollectionID(t *testing.T) {
	stub := newChromaStub(t)
	svc := NewVectorService(config.VectorDBConfig{BaseURL: stub.server.URL})

	count, err := svc.Count(context.Background(), "curriculum_content")
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = svc.Count(context.Background(), "curriculum_content")
	require.NoError(t, err)

	// get-or-create 只应发生一次，后续走进程内缓存
	creates := 0
	for _, u := range stub.seen() {
		if u.Path == "/api/v1/collections" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}
