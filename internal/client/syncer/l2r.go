package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

// localToRemote отправляет ожидающие локальные записи в удаленное хранилище
func (p *pass) localToRemote(ctx context.Context) error {
	p.state.Lock()
	defer p.state.Unlock()

	for _, doc := range p.state.Documents() {
		if doc.IsPaused() || !doc.HasPendingWrite() {
			continue
		}
		// запись сделана или конфликт разрешен в этом проходе
		if doc.LastResolution() == p.t {
			continue
		}
		p.pushPendingWrite(ctx, doc)
	}
	return nil
}

// pushPendingWrite отправляет ожидающую запись документа.
// Удаленная запись выполняется только если удаленный документ все еще
// в последней известной версии, иначе документ в конфликте.
func (p *pass) pushPendingWrite(ctx context.Context, doc *syncstate.DocumentState) {
	id := doc.ID()
	pending := doc.PendingWrite()
	last := doc.LastKnownRemoteVersion()
	log := p.log.With("document_id", id, "op", pending.OperationType)

	var (
		next      *version.Stamp
		conflict  bool
		remoteDoc models.Document
		fetched   bool
		err       error
	)

	// необработанное удаленное событие с чужой версией может означать конфликт.
	// Событие могло устареть, поэтому решение принимается по удаленному документу.
	if queued, ok := p.queue.TakeOne(id); ok {
		stamp, decodeErr := version.FromDocument(queued.FullDocument)
		if decodeErr != nil {
			p.desyncWithError(ctx, id, KindDecoding, decodeErr)
			return
		}
		if !doc.HasCommittedVersion(stamp) {
			if remoteDoc, err = p.fetchRemote(ctx, id); err != nil {
				p.e.reportError(KindStore, p.ns, id, err)
				return
			}
			current, decodeErr := version.FromDocument(remoteDoc)
			if decodeErr != nil {
				p.desyncWithError(ctx, id, KindDecoding, decodeErr)
				return
			}
			if current.Equal(last) {
				log.Debug("Dropping stale remote event", "remote_op", queued.OperationType, "version", last)
			} else {
				log.Info("Unprocessed remote event conflicts with local write", "remote_op", queued.OperationType)
				conflict, fetched = true, true
			}
		}
	}

	if !conflict {
		switch pending.OperationType {
		case models.OperationInsert:
			if pending.FullDocument == nil {
				p.pause(ctx, doc, KindDocumentDoesNotExist, errors.New("pending insert carries no document"))
				return
			}
			next = version.Fresh()
			_, err = p.remote.InsertOne(ctx, version.WithVersion(pending.FullDocument, next))
			if errors.Is(err, docstore.ErrDuplicateKey) {
				conflict, err = true, nil
			}

		case models.OperationReplace:
			if pending.FullDocument == nil {
				p.pause(ctx, doc, KindDocumentDoesNotExist, errors.New("pending replace carries no document"))
				return
			}
			next = version.Next(last)
			var res *docstore.UpdateResult
			res, err = p.remote.ReplaceOne(ctx, version.MatchFilter(id, last), version.WithVersion(pending.FullDocument, next), nil)
			if err == nil && res.MatchedCount == 0 {
				conflict = true
			}

		case models.OperationUpdate:
			if pending.UpdateDescription.IsEmpty() {
				// документ не изменился: версию не трогаем, удаленная запись не нужна
				if err := doc.ClearPendingWrite(ctx, last); err != nil {
					p.e.reportError(KindStore, p.ns, id, err)
					return
				}
				log.Debug("Dropping empty update")
				return
			}
			next = version.Next(last)
			var res *docstore.UpdateResult
			res, err = p.remote.UpdateOne(ctx, version.MatchFilter(id, last), versionedUpdate(pending.UpdateDescription, next), nil)
			if err == nil && res.MatchedCount == 0 {
				conflict = true
			}

		case models.OperationDelete:
			var deleted int64
			deleted, err = p.remote.DeleteOne(ctx, version.MatchFilter(id, last))
			if err == nil && deleted == 0 {
				remoteDoc, err = p.fetchRemote(ctx, id)
				fetched = true
				conflict = err == nil && remoteDoc != nil
			}
			if err == nil && !conflict {
				// удаление подтверждено: документ больше не синхронизируется
				if err := p.desync(ctx, id); err != nil {
					p.e.reportError(KindStore, p.ns, id, err)
					return
				}
				remoteWritesCounter(pending.OperationType).Inc()
				p.stats.Pushed++
				p.e.emitEvent(p.state, pending.WithoutUncommittedWrites())
				return
			}

		default:
			p.desyncWithError(ctx, id, KindDecoding,
				fmt.Errorf("pending write: %w %q", ErrUnknownOperation, pending.OperationType))
			return
		}
	}

	if err != nil {
		// запись повторится на следующем проходе
		p.e.reportError(KindStore, p.ns, id, fmt.Errorf("failed to write %s to remote: %w", pending.OperationType, err))
		return
	}

	if conflict {
		if !fetched {
			if remoteDoc, err = p.fetchRemote(ctx, id); err != nil {
				p.e.reportError(KindStore, p.ns, id, err)
				return
			}
		}
		log.Info("Remote document changed since last sync", "version", last)
		p.resolveConflict(ctx, doc, p.synthesizedRemoteEvent(id, remoteDoc))
		return
	}

	if err := doc.ClearPendingWrite(ctx, next); err != nil {
		p.e.reportError(KindStore, p.ns, id, err)
		return
	}
	remoteWritesCounter(pending.OperationType).Inc()
	p.stats.Pushed++
	log.Debug("Local write committed", "version", next)
	p.e.emitEvent(p.state, pending.WithoutUncommittedWrites())
}

// versionedUpdate строит удаленное обновление: изменения полей и новая версия
func versionedUpdate(desc *models.UpdateDescription, next *version.Stamp) models.Document {
	update := version.UpdateFor(next)
	changes := desc.UpdateDocument()
	if set, ok := changes["$set"].(models.Document); ok {
		versioned := update["$set"].(models.Document)
		for field, value := range set {
			versioned[field] = value
		}
	}
	if unset, ok := changes["$unset"]; ok {
		update["$unset"] = unset
	}
	return update
}
