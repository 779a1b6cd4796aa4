package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore/memstore"
	"github.com/iudanet/docsync/pkg/api"
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// doOp выполняет операцию op над app.notes и декодирует ответ
func doOp(t *testing.T, h *DocumentHandler, db, op string, req any) (*httptest.ResponseRecorder, api.DocumentResponse) {
	t.Helper()

	var body io.Reader = http.NoBody
	if req != nil {
		data, err := json.Marshal(req)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/namespaces/"+db+"/notes/"+op, body)
	r.SetPathValue("db", db)
	r.SetPathValue("coll", "notes")
	r.SetPathValue("op", op)

	w := httptest.NewRecorder()
	h.Handle(w, r)

	var resp api.DocumentResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDocumentHandler_Operations(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), memstore.New())

	w, resp := doOp(t, h, "app", api.OpInsertMany, api.DocumentRequest{Documents: []map[string]any{
		{"_id": "a", "n": 1, "tag": "x"},
		{"_id": "b", "n": 2, "tag": "y"},
		{"_id": "c", "n": 3, "tag": "x"},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b", "c"}, resp.InsertedIDs)

	t.Run("count without body", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpCount, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(3), resp.Count)
	})

	t.Run("find with sort, skip and limit", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpFind, api.DocumentRequest{
			Filter: map[string]any{"tag": "x"},
			Sort:   []api.SortField{{Field: "n", Descending: true}},
			Limit:  1,
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, resp.Documents, 1)
		assert.Equal(t, "c", resp.Documents[0]["_id"])
	})

	t.Run("numeric filters", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpCount, api.DocumentRequest{
			Filter: map[string]any{"n": map[string]any{"$gte": 2}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(2), resp.Count)
	})

	t.Run("aggregate", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpAggregate, api.DocumentRequest{Pipeline: []map[string]any{
			{"$match": map[string]any{"tag": "x"}},
			{"$count": "total"},
		}})
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, resp.Documents, 1)
		assert.EqualValues(t, 2, resp.Documents[0]["total"])
	})

	t.Run("update many", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpUpdateMany, api.DocumentRequest{
			Filter: map[string]any{"tag": "x"},
			Update: map[string]any{"$inc": map[string]any{"n": 10}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(2), resp.MatchedCount)
		assert.Equal(t, int64(2), resp.ModifiedCount)
	})

	t.Run("find one and update returns the new document", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpFindOneAndUpdate, api.DocumentRequest{
			Filter:      map[string]any{"_id": "b"},
			Update:      map[string]any{"$set": map[string]any{"tag": "z"}},
			ReturnAfter: true,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "z", resp.Document["tag"])
	})

	t.Run("replace with upsert", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpReplaceOne, api.DocumentRequest{
			Filter:   map[string]any{"_id": "d"},
			Document: map[string]any{"_id": "d", "n": 4},
			Upsert:   true,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "d", resp.UpsertedID)
	})

	t.Run("delete", func(t *testing.T) {
		w, resp := doOp(t, h, "app", api.OpDeleteMany, api.DocumentRequest{
			Filter: map[string]any{"_id": map[string]any{"$in": []any{"a", "d"}}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(2), resp.DeletedCount)
	})
}

func TestDocumentHandler_Errors(t *testing.T) {
	h := NewDocumentHandler(setupTestLogger(), memstore.New())
	w, _ := doOp(t, h, "app", api.OpInsertOne, api.DocumentRequest{Document: map[string]any{"_id": "a"}})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		req        any
		name       string
		db         string
		op         string
		wantCode   string
		wantStatus int
	}{
		{
			name:       "duplicate key",
			db:         "app",
			op:         api.OpInsertOne,
			req:        api.DocumentRequest{Document: map[string]any{"_id": "a"}},
			wantStatus: http.StatusConflict,
			wantCode:   api.CodeDuplicateKey,
		},
		{
			name:       "find one without match",
			db:         "app",
			op:         api.OpFindOne,
			req:        api.DocumentRequest{Filter: map[string]any{"_id": "zzz"}},
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeNotFound,
		},
		{
			name:       "non-string id",
			db:         "app",
			op:         api.OpInsertOne,
			req:        api.DocumentRequest{Document: map[string]any{"_id": 42}},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeInvalidID,
		},
		{
			name:       "unsupported filter operator",
			db:         "app",
			op:         api.OpFind,
			req:        api.DocumentRequest{Filter: map[string]any{"n": map[string]any{"$where": "1"}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeInvalidRequest,
		},
		{
			name:       "unknown operation",
			db:         "app",
			op:         "drop",
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeInvalidRequest,
		},
		{
			name:       "invalid database name",
			db:         "a.b",
			op:         api.OpFind,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeInvalidRequest,
		},
		{
			name:       "malformed body",
			db:         "app",
			op:         api.OpFind,
			req:        json.RawMessage(`[1,2]`),
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doOp(t, h, tt.db, tt.op, tt.req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		check      func(ctx context.Context) error
		name       string
		wantStatus string
		wantCode   int
	}{
		{name: "no check", wantCode: http.StatusOK, wantStatus: "ok"},
		{
			name:       "storage available",
			check:      func(ctx context.Context) error { return nil },
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "storage unavailable",
			check:      func(ctx context.Context) error { return errors.New("database is locked") },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), "1.2.3", tt.check)

			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp api.HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "1.2.3", resp.Version)
		})
	}
}

func TestAccessToken(t *testing.T) {
	cfg := JWTConfig{Secret: []byte("secret"), AccessTokenTTL: time.Hour}

	token, expiresIn, err := GenerateAccessToken(cfg, "laptop")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	claims, err := ValidateAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "laptop", claims.Subject)
	assert.Equal(t, "docsync", claims.Issuer)

	_, err = ValidateAccessToken(JWTConfig{Secret: []byte("other")}, token)
	assert.Error(t, err)
}

func TestGetSubject(t *testing.T) {
	_, ok := GetSubject(context.Background())
	assert.False(t, ok)

	subject, ok := GetSubject(context.WithValue(context.Background(), SubjectKey, "laptop"))
	require.True(t, ok)
	assert.Equal(t, "laptop", subject)
}
