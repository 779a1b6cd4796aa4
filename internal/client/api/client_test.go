package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/docstore/memstore"
	"github.com/iudanet/docsync/internal/models"
	docserver "github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/version"
	"github.com/iudanet/docsync/pkg/api"
)

var testNS = models.Namespace{Database: "app", Collection: "notes"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupServer поднимает настоящий HTTP API поверх memstore
func setupServer(t *testing.T, jwt *handlers.JWTConfig) (*httptest.Server, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	srv := httptest.NewServer(docserver.NewRouter(docserver.RouterConfig{
		Logger:  testLogger(),
		Store:   store,
		JWT:     jwt,
		Version: "test",
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080", "", testLogger())

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.True(t, client.IsConnected(), "optimistic until the first request fails")
	assert.False(t, client.IsLoggedIn())
	assert.True(t, NewClient("http://localhost:8080", "token", testLogger()).IsLoggedIn())
}

func TestCollection_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupServer(t, nil)
	coll := NewClient(srv.URL, "", testLogger()).Collection(testNS)
	assert.Equal(t, testNS, coll.Namespace())

	stamp := version.Fresh()
	id, err := coll.InsertOne(ctx, version.WithVersion(models.Document{"_id": "1", "n": 1, "tags": []any{"a"}}, stamp))
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	ids, err := coll.InsertMany(ctx, []models.Document{{"_id": "2", "n": 2}, {"_id": "3", "n": 3.5}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)

	doc, err := coll.FindOne(ctx, models.Document{"_id": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc["n"], "integers come back as int64")
	got, err := version.FromDocument(doc)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(got))

	docs, err := coll.Find(ctx, models.Document{}, &docstore.FindOptions{
		Skip:       1,
		Projection: models.Document{"n": 1},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 3.5, docs[1]["n"])

	n, err := coll.Count(ctx, models.Document{"n": models.Document{"$gt": 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	agg, err := coll.Aggregate(ctx, []models.Document{{"$count": "total"}})
	require.NoError(t, err)
	require.Len(t, agg, 1)
	assert.Equal(t, int64(3), agg[0]["total"])

	// версионная замена: устаревшая версия не совпадает
	res, err := coll.ReplaceOne(ctx, version.MatchFilter("1", version.Next(stamp)), models.Document{"n": 0}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.MatchedCount)

	res, err = coll.UpdateOne(ctx, version.MatchFilter("1", stamp),
		models.Document{"$set": models.Document{"n": 10, models.VersionField: version.Next(stamp).Document()}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)

	res, err = coll.UpdateMany(ctx, models.Document{"_id": "9"}, models.Document{"$set": models.Document{"n": 9}},
		&docstore.UpdateOptions{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, "9", res.UpsertedID)

	after, err := coll.FindOneAndUpdate(ctx, models.Document{"_id": "2"},
		models.Document{"$inc": models.Document{"n": 1}}, &docstore.FindOneAndUpdateOptions{ReturnAfter: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), after["n"])

	deleted, err := coll.DeleteOne(ctx, models.Document{"_id": "9"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = coll.DeleteMany(ctx, models.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestCollection_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	srv, store := setupServer(t, nil)
	_, err := store.Collection(testNS).InsertOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)

	coll := NewClient(srv.URL, "", testLogger()).Collection(testNS)

	_, err = coll.InsertOne(ctx, models.Document{"_id": "1"})
	assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

	_, err = coll.FindOne(ctx, models.Document{"_id": "missing"}, nil)
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)

	_, err = coll.InsertOne(ctx, models.Document{"_id": 7})
	assert.ErrorIs(t, err, docstore.ErrInvalidID)

	_, err = coll.Find(ctx, models.Document{"n": models.Document{"$regex": "x"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (400)")
}

func TestClient_Unauthorized(t *testing.T) {
	ctx := context.Background()
	jwtConfig := handlers.JWTConfig{Secret: []byte("secret"), AccessTokenTTL: time.Hour}
	srv, _ := setupServer(t, &jwtConfig)

	anonymous := NewClient(srv.URL, "", testLogger())
	_, err := anonymous.Collection(testNS).Count(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = anonymous.Watch(ctx, testNS, []string{"1"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, anonymous.Ping(ctx), "health does not require a token")

	token, _, err := handlers.GenerateAccessToken(jwtConfig, "laptop")
	require.NoError(t, err)
	authorized := NewClient(srv.URL, token, testLogger())
	_, err = authorized.Collection(testNS).Count(ctx, nil)
	assert.NoError(t, err)
}

func TestClient_Watch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, store := setupServer(t, nil)
	client := NewClient(srv.URL, "", testLogger())

	stream, err := client.Watch(ctx, testNS, []string{"1", "2"})
	require.NoError(t, err)

	remote := store.Collection(testNS)
	_, err = remote.InsertOne(ctx, models.Document{"_id": "3"})
	require.NoError(t, err)
	_, err = remote.InsertOne(ctx, models.Document{"_id": "1", "n": 1})
	require.NoError(t, err)
	_, err = remote.UpdateOne(ctx, models.Document{"_id": "1"}, models.Document{"$set": models.Document{"n": 2}}, nil)
	require.NoError(t, err)

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OperationInsert, ev.OperationType)
	assert.Equal(t, "1", ev.DocumentID)
	assert.Equal(t, testNS, ev.Namespace)
	assert.Equal(t, int64(1), ev.FullDocument["n"])

	ev, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OperationUpdate, ev.OperationType)
	require.NotNil(t, ev.UpdateDescription)
	assert.Equal(t, int64(2), ev.UpdateDescription.UpdatedFields["n"])

	require.NoError(t, stream.Close())
	_, err = stream.Next(ctx)
	assert.Error(t, err)
}

func TestClient_Connectivity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _ := setupServer(t, nil)
	client := NewClient(srv.URL, "", testLogger())

	require.NoError(t, client.Ping(ctx))
	assert.True(t, client.IsConnected())

	srv.Close()

	var changes atomic.Int32
	var lastState atomic.Bool
	lastState.Store(true)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.MonitorConnectivity(monitorCtx, 10*time.Millisecond, func(connected bool) {
			changes.Add(1)
			lastState.Store(connected)
		})
	}()

	assert.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, lastState.Load())
	assert.False(t, client.IsConnected())

	stopMonitor()
	<-done
}

// TestClient_ContextCancellation проверяет, что отмена запроса не считается потерей сети
func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Collection(testNS).Count(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.True(t, client.IsConnected())
}

// TestClient_InvalidJSON проверяет обработку невалидного JSON в ответе
func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("invalid json {{{"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", testLogger()).Collection(testNS).Count(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

// TestClient_HTTPClientRedirect проверяет, что токен переживает редирект
func TestClient_HTTPClientRedirect(t *testing.T) {
	redirectCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if redirectCount < 3 {
			redirectCount++
			w.Header().Set("Location", "/redirected")
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}

		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(api.DocumentResponse{Count: 5})
	}))
	defer server.Close()

	n, err := NewClient(server.URL, "token", testLogger()).Collection(testNS).Count(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, 3, redirectCount)
}
