package boltdb

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

var errReadOnly = errors.New("read-only transaction")

var _ storage.DocumentStorage = (*Storage)(nil)

// Collection возвращает локальную коллекцию документов namespace
func (s *Storage) Collection(ns models.Namespace) docstore.Collection {
	return docstore.NewStore(ns, &documentBackend{storage: s, root: bucketDocuments, ns: ns}, nil)
}

// UndoCollection возвращает журнал отмены namespace: снимки документов,
// сделанные перед локальной записью, которая может быть прервана
func (s *Storage) UndoCollection(ns models.Namespace) docstore.Collection {
	return docstore.NewStore(ns, &documentBackend{storage: s, root: bucketUndo, ns: ns}, nil)
}

// documentBackend хранит документы namespace во вложенном bucket root/<namespace>,
// ключ _id, значение msgpack+snappy
type documentBackend struct {
	storage *Storage
	root    []byte
	ns      models.Namespace
}

func (b *documentBackend) View(ctx context.Context, fn func(tx docstore.Txn) error) error {
	if b.storage.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.storage.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.root)
		if root == nil {
			return fmt.Errorf("%s bucket not found", b.root)
		}
		// bucket namespace создается при первой записи
		return fn(&documentTxn{bucket: root.Bucket([]byte(b.ns.String()))})
	})
}

func (b *documentBackend) Update(ctx context.Context, fn func(tx docstore.Txn) error) error {
	if b.storage.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.storage.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(b.root)
		if root == nil {
			return fmt.Errorf("%s bucket not found", b.root)
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(b.ns.String()))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", b.ns, err)
		}
		return fn(&documentTxn{bucket: bucket, writable: true})
	})
}

type documentTxn struct {
	bucket   *bbolt.Bucket
	writable bool
}

func (t *documentTxn) Get(id string) (models.Document, error) {
	if t.bucket == nil {
		return nil, nil
	}
	data := t.bucket.Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	return decodeDocument(data)
}

// ForEach обходит документы в порядке ключей bbolt, то есть по возрастанию _id
func (t *documentTxn) ForEach(fn func(doc models.Document) error) error {
	if t.bucket == nil {
		return nil
	}
	return t.bucket.ForEach(func(k, v []byte) error {
		if v == nil {
			return nil
		}
		doc, err := decodeDocument(v)
		if err != nil {
			return fmt.Errorf("document %q: %w", k, err)
		}
		return fn(doc)
	})
}

func (t *documentTxn) Put(doc models.Document) error {
	if !t.writable {
		return errReadOnly
	}
	id, ok := doc.ID()
	if !ok {
		return docstore.ErrInvalidID
	}
	data, err := encodeValue(map[string]any(doc))
	if err != nil {
		return err
	}
	if err := t.bucket.Put([]byte(id), data); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (t *documentTxn) Delete(id string) error {
	if !t.writable {
		return errReadOnly
	}
	if err := t.bucket.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func decodeDocument(data []byte) (models.Document, error) {
	var raw map[string]any
	if err := decodeValue(data, &raw); err != nil {
		return nil, err
	}
	return query.NormalizeDocument(raw), nil
}
