package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

var errReadOnly = errors.New("read-only transaction")

// documentBackend хранит документы namespace в таблице documents
type documentBackend struct {
	db *sql.DB
	ns models.Namespace
}

func (b *documentBackend) View(ctx context.Context, fn func(tx docstore.Txn) error) error {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(&documentTxn{ctx: ctx, tx: tx, ns: b.ns.String()})
}

func (b *documentBackend) Update(ctx context.Context, fn func(tx docstore.Txn) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&documentTxn{ctx: ctx, tx: tx, ns: b.ns.String(), writable: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type documentTxn struct {
	ctx      context.Context
	tx       *sql.Tx
	ns       string
	writable bool
}

func (t *documentTxn) Get(id string) (models.Document, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT body FROM documents WHERE namespace = ? AND id = ?`, t.ns, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeDocument(body)
}

// ForEach обходит документы по возрастанию _id
func (t *documentTxn) ForEach(fn func(doc models.Document) error) error {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, body FROM documents WHERE namespace = ? ORDER BY id`, t.ns)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	// документы читаются до вызова fn: fn может писать в ту же транзакцию
	var docs []models.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return fmt.Errorf("document %q: %w", id, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate documents: %w", err)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (t *documentTxn) Put(doc models.Document) error {
	if !t.writable {
		return errReadOnly
	}
	id, ok := doc.ID()
	if !ok {
		return docstore.ErrInvalidID
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (namespace, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, t.ns, id, string(body), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (t *documentTxn) Delete(id string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE namespace = ? AND id = ?`, t.ns, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func decodeDocument(body string) (models.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return query.NormalizeDocument(models.Document(raw)), nil
}
