package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

// SyncStateStore хранит состояние синхронизации одного экземпляра
// в bucket sync_config/<instanceKey>/<namespace>/<document id>
type SyncStateStore struct {
	storage     *Storage
	instanceKey []byte
}

var _ storage.SyncStateStorage = (*SyncStateStore)(nil)

// SyncStates returns the sync state store of the given instance.
func (s *Storage) SyncStates(instanceKey string) *SyncStateStore {
	return &SyncStateStore{storage: s, instanceKey: []byte(instanceKey)}
}

func (s *SyncStateStore) update(fn func(instance *bbolt.Bucket) error) error {
	if s.storage.db == nil {
		return storage.ErrStorageClosed
	}
	err := s.storage.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSyncConfig)
		if root == nil {
			return fmt.Errorf("sync config bucket not found")
		}
		instance, err := root.CreateBucketIfNotExists(s.instanceKey)
		if err != nil {
			return fmt.Errorf("failed to create instance bucket: %w", err)
		}
		return fn(instance)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// view вызывает fn с bucket экземпляра; если его еще нет, fn не вызывается
func (s *SyncStateStore) view(fn func(instance *bbolt.Bucket) error) error {
	if s.storage.db == nil {
		return storage.ErrStorageClosed
	}
	return s.storage.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSyncConfig)
		if root == nil {
			return fmt.Errorf("sync config bucket not found")
		}
		instance := root.Bucket(s.instanceKey)
		if instance == nil {
			return nil
		}
		return fn(instance)
	})
}

// SaveNamespace регистрирует namespace экземпляра
func (s *SyncStateStore) SaveNamespace(ctx context.Context, ns models.Namespace) error {
	return s.update(func(instance *bbolt.Bucket) error {
		if _, err := instance.CreateBucketIfNotExists([]byte(ns.String())); err != nil {
			return fmt.Errorf("failed to create namespace bucket: %w", err)
		}
		return nil
	})
}

// ListNamespaces возвращает зарегистрированные namespace в порядке имен
func (s *SyncStateStore) ListNamespaces(ctx context.Context) ([]models.Namespace, error) {
	var out []models.Namespace
	err := s.view(func(instance *bbolt.Bucket) error {
		return instance.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			ns, err := models.ParseNamespace(string(k))
			if err != nil {
				return fmt.Errorf("%w: %v", storage.ErrCorruptedRecord, err)
			}
			out = append(out, ns)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return out, nil
}

// SaveDocumentState сохраняет состояние документа
func (s *SyncStateStore) SaveDocumentState(ctx context.Context, record *models.DocumentSyncRecord) error {
	data, err := encodeValue(record)
	if err != nil {
		return fmt.Errorf("failed to marshal document state: %w", err)
	}

	return s.update(func(instance *bbolt.Bucket) error {
		bucket, err := instance.CreateBucketIfNotExists([]byte(record.Namespace.String()))
		if err != nil {
			return fmt.Errorf("failed to create namespace bucket: %w", err)
		}
		if err := bucket.Put([]byte(record.DocumentID), data); err != nil {
			return fmt.Errorf("failed to save document state: %w", err)
		}
		return nil
	})
}

// DeleteDocumentStates удаляет состояния документов в одной транзакции
func (s *SyncStateStore) DeleteDocumentStates(ctx context.Context, ns models.Namespace, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.update(func(instance *bbolt.Bucket) error {
		bucket := instance.Bucket([]byte(ns.String()))
		if bucket == nil {
			return nil
		}
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("failed to delete document state %q: %w", id, err)
			}
		}
		return nil
	})
}

// LoadDocumentStates загружает все состояния документов namespace
func (s *SyncStateStore) LoadDocumentStates(ctx context.Context, ns models.Namespace) ([]*models.DocumentSyncRecord, error) {
	var out []*models.DocumentSyncRecord
	err := s.view(func(instance *bbolt.Bucket) error {
		bucket := instance.Bucket([]byte(ns.String()))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			record := &models.DocumentSyncRecord{}
			if err := decodeValue(v, record); err != nil {
				return fmt.Errorf("document state %q: %w", k, err)
			}
			normalizeRecord(record)
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load document states: %w", err)
	}
	return out, nil
}

// normalizeRecord приводит числа в документах записи к int64/float64
func normalizeRecord(record *models.DocumentSyncRecord) {
	record.LastKnownRemoteVersion = query.NormalizeDocument(record.LastKnownRemoteVersion)
	if ev := record.LastUncommittedChangeEvent; ev != nil {
		ev.FullDocument = query.NormalizeDocument(ev.FullDocument)
		if ev.UpdateDescription != nil {
			ev.UpdateDescription.UpdatedFields = query.NormalizeDocument(ev.UpdateDescription.UpdatedFields)
		}
	}
}
