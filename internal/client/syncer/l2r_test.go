package syncer

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

// pushOnly выполняет только отправку локальных записей, как если бы удаленное
// событие пришло между фазами прохода
func (env *testEnv) pushOnly(t *testing.T) *PassStats {
	t.Helper()
	state, ok := env.engine.instance.Lookup(testNS)
	require.True(t, ok)

	stats := &PassStats{}
	p := env.engine.newPass(state, env.engine.logicalT.Add(1), slog.New(slog.NewTextHandler(io.Discard, nil)), stats)
	require.NoError(t, p.localToRemote(env.ctx))
	env.engine.dispatch.flush()
	return stats
}

func (env *testEnv) remoteStamp(t *testing.T, id string) *version.Stamp {
	t.Helper()
	stamp, err := version.FromDocument(env.remoteDoc(t, id))
	require.NoError(t, err)
	require.NotNil(t, stamp)
	return stamp
}

func TestLocalToRemote_QueuedEventResolvedAgainstCurrentRemote(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())
	env.pushed(t, models.Document{"_id": "a", "title": "draft"})

	_, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "a"},
		models.Document{"$set": models.Document{"title": "local"}}, nil)
	require.NoError(t, err)

	// документ удалили и снова вставили на другом экземпляре; в очереди осталось только удаление
	env.putRemote(t, models.Document{"_id": "a", "title": "reinserted"}, otherStamp)
	env.engine.streams.Queue(testNS).Enqueue("a", models.NewDeleteEvent(testNS, "a", false))

	stats := env.pushOnly(t)

	assert.Equal(t, 1, stats.Conflicts)
	assert.Equal(t, "reinserted", env.remoteDoc(t, "a")["title"])
	assert.Equal(t, "reinserted", env.localDoc(t, "a")["title"], "remote document wins, it is not deleted")
	assert.Equal(t, []string{"a"}, env.engine.SyncedIDs(testNS))
	assert.Empty(t, env.engine.PendingIDs(testNS))
	assert.Empty(t, env.errs.kinds())
}

func TestLocalToRemote_StaleQueuedEventIsNotAConflict(t *testing.T) {
	env := newTestEnv(t)
	var calls atomic.Int32
	env.configure(t, syncstate.ConflictHandlerFunc(func(ctx context.Context, id string, local, remote *models.ChangeEvent) (models.Document, error) {
		calls.Add(1)
		return remote.FullDocument, nil
	}))
	env.pushed(t, models.Document{"_id": "a", "title": "draft"})

	_, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "a"},
		models.Document{"$set": models.Document{"title": "local"}}, nil)
	require.NoError(t, err)
	env.engine.streams.Queue(testNS).Enqueue("a", models.NewDeleteEvent(testNS, "a", false))

	env.pushOnly(t)

	assert.Zero(t, calls.Load())
	assert.Equal(t, "local", env.remoteDoc(t, "a")["title"])
	assert.EqualValues(t, 1, env.remoteStamp(t, "a").Counter)
	assert.Empty(t, env.engine.PendingIDs(testNS))
}

func TestLocalToRemote_EmptyUpdateIsNotSent(t *testing.T) {
	env := newTestEnv(t)
	var calls atomic.Int32
	env.configure(t, syncstate.ConflictHandlerFunc(func(ctx context.Context, id string, local, remote *models.ChangeEvent) (models.Document, error) {
		calls.Add(1)
		return remote.FullDocument, nil
	}))
	env.pushed(t, models.Document{"_id": "a", "title": "draft"})

	noop := func() {
		t.Helper()
		res, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "a"},
			models.Document{"$set": models.Document{"title": "draft"}}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.MatchedCount)
		assert.Zero(t, res.ModifiedCount)
		require.Equal(t, []string{"a"}, env.engine.PendingIDs(testNS))
	}

	noop()
	env.engine.dispatch.flush()
	before := len(env.events.all())
	env.pass(t)

	assert.EqualValues(t, 0, env.remoteStamp(t, "a").Counter, "version is not advanced")
	assert.Empty(t, env.engine.PendingIDs(testNS))
	assert.Len(t, env.events.all(), before, "nothing was committed")

	// удаленный документ изменен другим экземпляром: пустое обновление не конфликтует с ним
	env.putRemote(t, models.Document{"_id": "a", "title": "remote"}, otherStamp)
	noop()
	env.pass(t)

	assert.Zero(t, calls.Load())
	assert.Equal(t, "remote", env.remoteDoc(t, "a")["title"])
	assert.Equal(t, otherStamp.InstanceID, env.remoteStamp(t, "a").InstanceID)

	require.NoError(t, env.engine.Refresh(env.ctx))
	env.pass(t)
	assert.Equal(t, "remote", env.localDoc(t, "a")["title"])
	assert.Zero(t, calls.Load())
}

func TestVersionedUpdate(t *testing.T) {
	next := &version.Stamp{ProtocolVersion: version.ProtocolVersion, InstanceID: "i", Counter: 3}
	update := versionedUpdate(&models.UpdateDescription{
		UpdatedFields: models.Document{"title": "x"},
		RemovedFields: []string{"tags"},
	}, next)

	assert.Equal(t, models.Document{
		"$set": models.Document{
			"title":             "x",
			models.VersionField: next.Document(),
		},
		"$unset": models.Document{"tags": true},
	}, update)
}
