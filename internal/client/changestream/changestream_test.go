package changestream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/docstore/memstore"
	"github.com/iudanet/docsync/internal/models"
)

var testNS = models.Namespace{Database: "app", Collection: "notes"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue(t *testing.T) {
	q := NewQueue()

	first := models.NewInsertEvent(testNS, "1", models.Document{"_id": "1"}, false)
	second := models.NewDeleteEvent(testNS, "1", false)
	q.Enqueue("1", first)
	q.Enqueue("1", second)
	q.Enqueue("2", first)

	ev, ok := q.Peek("1")
	require.True(t, ok)
	assert.Same(t, second, ev, "last event for an id wins")
	assert.Equal(t, 2, q.Len())

	ev, ok = q.TakeOne("1")
	require.True(t, ok)
	assert.Same(t, second, ev)
	_, ok = q.TakeOne("1")
	assert.False(t, ok)

	drained := q.DrainAll()
	assert.Len(t, drained, 1)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.DrainAll())
}

func TestWatcher_FeedsQueue(t *testing.T) {
	ctx := context.Background()
	remote := memstore.New()
	coll := remote.Collection(testNS)

	var opened atomic.Int32
	manager := NewManager(remote, testLogger())
	manager.Register(testNS, func() []string { return []string{"1"} }, func(context.Context) error {
		opened.Add(1)
		return nil
	})
	manager.Start(ctx, testNS)
	defer manager.StopAll()

	require.Eventually(t, func() bool {
		return opened.Load() == 1 && remote.Hub().Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := coll.InsertOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, models.Document{"_id": "other"})
	require.NoError(t, err)

	q := manager.Queue(testNS)
	require.Eventually(t, func() bool { return q.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	ev, ok := q.Peek("1")
	require.True(t, ok)
	assert.Equal(t, models.OperationInsert, ev.OperationType)

	manager.Stop(testNS)
	assert.False(t, manager.IsRunning(testNS))
	require.Eventually(t, func() bool { return remote.Hub().Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

// flakyWatcher отдает ошибку при первом открытии потока
type flakyWatcher struct {
	inner docstore.Watcher
	mu    sync.Mutex
	calls int
}

func (f *flakyWatcher) Watch(ctx context.Context, ns models.Namespace, ids []string) (docstore.ChangeStream, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return nil, errors.New("connection refused")
	}
	return f.inner.Watch(ctx, ns, ids)
}

func TestWatcher_Reopens(t *testing.T) {
	remote := memstore.New()
	source := &flakyWatcher{inner: remote}
	var opened atomic.Int32

	w := NewWatcher(WatcherConfig{
		Source:     source,
		Queue:      NewQueue(),
		IDs:        func() []string { return []string{"1"} },
		OnOpen:     func(context.Context) error { opened.Add(1); return nil },
		Logger:     testLogger(),
		Namespace:  testNS,
		RetryDelay: 10 * time.Millisecond,
	})
	w.Start(context.Background())
	defer w.Stop()

	// первая попытка падает, вторая открывает поток
	require.Eventually(t, func() bool { return opened.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	source.mu.Lock()
	assert.Equal(t, 2, source.calls)
	source.mu.Unlock()
}

func TestWatcher_NoIDs(t *testing.T) {
	source := &flakyWatcher{inner: memstore.New()}

	w := NewWatcher(WatcherConfig{
		Source:    source,
		Queue:     NewQueue(),
		IDs:       func() []string { return nil },
		Logger:    testLogger(),
		Namespace: testNS,
	})
	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	assert.Zero(t, source.calls, "nothing to watch without synced ids")
}
