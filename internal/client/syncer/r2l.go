package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

// remoteToLocal применяет к локальным документам накопленные удаленные события
// и сверяет устаревшие документы с их актуальной удаленной версией
func (p *pass) remoteToLocal(ctx context.Context) error {
	p.state.Lock()
	defer p.state.Unlock()

	events := p.queue.DrainAll()

	// устаревшие документы без событий сверяются с удаленной стороной напрямую
	var unseen []string
	for _, id := range p.state.StaleIDs() {
		if _, ok := events[id]; !ok {
			unseen = append(unseen, id)
		}
	}

	var latest map[string]models.Document
	if len(unseen) > 0 {
		docs, err := p.remote.Find(ctx, idsFilter(unseen), nil)
		if err != nil {
			// документы остаются устаревшими до следующего прохода
			p.e.reportError(KindStore, p.ns, "", fmt.Errorf("failed to fetch stale documents: %w", err))
			unseen = nil
		}
		latest = make(map[string]models.Document, len(docs))
		for _, doc := range docs {
			if id, ok := doc.ID(); ok {
				latest[id] = doc
			}
		}
	}

	ids := make([]string, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		doc := p.state.Document(id)
		if doc == nil || doc.IsPaused() {
			continue
		}
		p.applyRemoteEvent(ctx, doc, events[id])
	}

	for _, id := range unseen {
		doc := p.state.Document(id)
		if doc == nil {
			continue
		}

		if !doc.IsPaused() {
			if remoteDoc, ok := latest[id]; ok {
				p.applyRemoteEvent(ctx, doc, models.NewReplaceEvent(p.ns, id, remoteDoc, false))
			} else if doc.LastKnownRemoteVersion() != nil {
				// документ был на удаленной стороне, а теперь его там нет
				p.applyRemoteEvent(ctx, doc, models.NewDeleteEvent(p.ns, id, false))
			}
		}

		// документ мог перестать синхронизироваться при применении события
		if doc := p.state.Document(id); doc != nil {
			if err := doc.SetStale(ctx, false); err != nil {
				p.e.reportError(KindStore, p.ns, id, err)
			}
		}
	}
	return nil
}

// applyRemoteEvent применяет одно удаленное событие к синхронизируемому документу
func (p *pass) applyRemoteEvent(ctx context.Context, doc *syncstate.DocumentState, event *models.ChangeEvent) {
	id := doc.ID()
	log := p.log.With("document_id", id, "op", event.OperationType)

	if doc.HasPendingWrite() && doc.LastResolution() == p.t {
		log.Debug("Local write in the current pass, waiting for the next one")
		return
	}

	switch event.OperationType {
	case models.OperationInsert, models.OperationReplace, models.OperationUpdate, models.OperationDelete:
	default:
		log.Warn("Dropping remote event of unknown operation")
		return
	}

	incoming, err := version.FromDocument(event.FullDocument)
	if err != nil {
		p.desyncWithError(ctx, id, KindDecoding, err)
		return
	}
	if incoming != nil && incoming.ProtocolVersion != version.ProtocolVersion {
		p.desyncWithError(ctx, id, KindUnsupportedVersion,
			fmt.Errorf("%w: %d", ErrUnsupportedVersion, incoming.ProtocolVersion))
		return
	}

	if doc.HasCommittedVersion(incoming) {
		log.Debug("Dropping event already committed by this instance", "version", incoming)
		return
	}

	if !doc.HasPendingWrite() {
		p.applyWithoutPendingWrite(ctx, doc, event, incoming)
		return
	}

	local := doc.LastKnownRemoteVersion()
	switch {
	case local == nil || incoming == nil:
		p.resolveConflict(ctx, doc, event)
	case local.InstanceID == incoming.InstanceID:
		if incoming.Counter <= local.Counter {
			log.Debug("Dropping stale remote event", "version", incoming, "local_version", local)
			return
		}
		p.resolveConflict(ctx, doc, event)
	default:
		p.applyAfterRemoteLookup(ctx, doc)
	}
}

// applyWithoutPendingWrite перезаписывает локальный документ удаленной версией
func (p *pass) applyWithoutPendingWrite(ctx context.Context, doc *syncstate.DocumentState, event *models.ChangeEvent, incoming *version.Stamp) {
	id := doc.ID()

	if event.OperationType == models.OperationDelete {
		if err := p.desync(ctx, id); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		p.stats.Pulled++
		p.e.emitEvent(p.state, event.WithoutUncommittedWrites())
		return
	}

	if event.FullDocument == nil {
		p.e.reportError(KindDocumentDoesNotExist, p.ns, id,
			errors.New("remote event carries no document"))
		return
	}

	if err := p.replaceLocal(ctx, id, version.Strip(event.FullDocument)); err != nil {
		p.e.reportError(KindStore, p.ns, id, err)
		return
	}
	if err := doc.ClearPendingWrite(ctx, incoming); err != nil {
		p.e.reportError(KindStore, p.ns, id, err)
		return
	}
	p.stats.Pulled++
	p.e.emitEvent(p.state, event.WithoutUncommittedWrites())
}

// applyAfterRemoteLookup обрабатывает событие, записанное другим экземпляром,
// пока у документа есть ожидающая запись: событие могло устареть,
// поэтому решение принимается по актуальному удаленному документу
func (p *pass) applyAfterRemoteLookup(ctx context.Context, doc *syncstate.DocumentState) {
	id := doc.ID()

	remoteDoc, err := p.fetchRemote(ctx, id)
	if err != nil {
		p.e.reportError(KindStore, p.ns, id, err)
		return
	}
	if remoteDoc == nil {
		p.resolveConflict(ctx, doc, p.synthesizedRemoteEvent(id, nil))
		return
	}

	current, err := version.FromDocument(remoteDoc)
	if err != nil {
		p.desyncWithError(ctx, id, KindDecoding, err)
		return
	}
	if local := doc.LastKnownRemoteVersion(); current != nil && local != nil && current.InstanceID == local.InstanceID {
		p.log.Debug("Dropping stale event from another instance", "document_id", id)
		return
	}
	p.resolveConflict(ctx, doc, p.synthesizedRemoteEvent(id, remoteDoc))
}
