// Package syncstate хранит состояние синхронизации экземпляра клиента:
// namespace, синхронизируемые документы, их версии и ожидающие отправки записи.
// Любое изменение сначала сохраняется в хранилище и только потом попадает в память.
package syncstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

// DocumentState состояние синхронизации одного документа
type DocumentState struct {
	store  storage.SyncStateStorage
	record *models.DocumentSyncRecord
	mu     sync.RWMutex
}

func newDocumentState(store storage.SyncStateStorage, record *models.DocumentSyncRecord) *DocumentState {
	return &DocumentState{store: store, record: record}
}

// ID returns the document id.
func (d *DocumentState) ID() string {
	return d.record.DocumentID
}

// Namespace returns the namespace of the document.
func (d *DocumentState) Namespace() models.Namespace {
	return d.record.Namespace
}

// Snapshot возвращает копию текущей записи
func (d *DocumentState) Snapshot() *models.DocumentSyncRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.Clone()
}

// LastKnownRemoteVersion возвращает последнюю известную версию документа на удаленной стороне
func (d *DocumentState) LastKnownRemoteVersion() *version.Stamp {
	d.mu.RLock()
	defer d.mu.RUnlock()
	// сохраняются только разобранные версии, ошибка здесь невозможна
	stamp, _ := version.Parse(d.record.LastKnownRemoteVersion)
	return stamp
}

// PendingWrite возвращает копию ожидающей отправки записи или nil
func (d *DocumentState) PendingWrite() *models.ChangeEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.LastUncommittedChangeEvent.Clone()
}

// HasPendingWrite reports whether a local write waits to be sent.
func (d *DocumentState) HasPendingWrite() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.LastUncommittedChangeEvent != nil
}

// LastResolution возвращает логическое время последней записи или разрешения конфликта
func (d *DocumentState) LastResolution() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.LastResolution
}

// IsStale сообщает, что документ нужно сверить с удаленной стороной
func (d *DocumentState) IsStale() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.IsStale
}

// IsPaused сообщает, что удаленные события к документу не применяются
func (d *DocumentState) IsPaused() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.record.IsPaused
}

// HasCommittedVersion сообщает, что версия candidate уже записана этим экземпляром:
// обе версии протокола 1, один InstanceID и счетчик candidate не больше сохраненного.
func (d *DocumentState) HasCommittedVersion(candidate *version.Stamp) bool {
	stored := d.LastKnownRemoteVersion()
	if stored == nil || candidate == nil {
		return false
	}
	return stored.ProtocolVersion == version.ProtocolVersion &&
		candidate.ProtocolVersion == version.ProtocolVersion &&
		stored.InstanceID == candidate.InstanceID &&
		candidate.Counter <= stored.Counter
}

// mutate применяет fn к копии записи, сохраняет ее и только затем подменяет состояние в памяти
func (d *DocumentState) mutate(ctx context.Context, fn func(record *models.DocumentSyncRecord)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.record.Clone()
	fn(next)
	if err := d.store.SaveDocumentState(ctx, next); err != nil {
		return fmt.Errorf("failed to save state of %s/%s: %w", next.Namespace, next.DocumentID, err)
	}
	d.record = next
	return nil
}

// RecordPendingWrite объединяет локальную запись с ожидающей и запоминает логическое время.
// Локальная запись снимает паузу; такой документ помечается устаревшим,
// чтобы пропущенные за время паузы удаленные изменения были сверены.
func (d *DocumentState) RecordPendingWrite(ctx context.Context, at uint64, event *models.ChangeEvent) error {
	return d.mutate(ctx, func(r *models.DocumentSyncRecord) {
		r.LastUncommittedChangeEvent = Coalesce(r.LastUncommittedChangeEvent, event)
		r.LastResolution = at
		if r.IsPaused {
			r.IsPaused = false
			r.IsStale = true
		}
	})
}

// RecordPendingWriteAt заменяет ожидающую запись без объединения и запоминает
// удаленную версию, относительно которой она была построена
func (d *DocumentState) RecordPendingWriteAt(ctx context.Context, at uint64, remote *version.Stamp, event *models.ChangeEvent) error {
	return d.mutate(ctx, func(r *models.DocumentSyncRecord) {
		r.LastUncommittedChangeEvent = event.Clone()
		r.LastResolution = at
		r.LastKnownRemoteVersion = remote.Document()
	})
}

// ClearPendingWrite удаляет ожидающую запись и фиксирует удаленную версию
func (d *DocumentState) ClearPendingWrite(ctx context.Context, committed *version.Stamp) error {
	return d.mutate(ctx, func(r *models.DocumentSyncRecord) {
		r.LastUncommittedChangeEvent = nil
		r.LastKnownRemoteVersion = committed.Document()
	})
}

// SetStale сохраняет флаг устаревания
func (d *DocumentState) SetStale(ctx context.Context, stale bool) error {
	if d.IsStale() == stale {
		return nil
	}
	return d.mutate(ctx, func(r *models.DocumentSyncRecord) {
		r.IsStale = stale
	})
}

// SetPaused сохраняет флаг паузы
func (d *DocumentState) SetPaused(ctx context.Context, paused bool) error {
	if d.IsPaused() == paused {
		return nil
	}
	return d.mutate(ctx, func(r *models.DocumentSyncRecord) {
		r.IsPaused = paused
	})
}
