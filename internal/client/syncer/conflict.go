package syncer

import (
	"context"
	"fmt"

	"github.com/iudanet/docsync/internal/client/syncstate"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/internal/version"
)

// resolveConflict разрешает конфликт локальной ожидающей записи с удаленным событием
// обработчиком namespace и приводит локальный документ к результату.
//
//	результат     принят удаленный   действие
//	документ      да                 локальный = результат, версия зафиксирована
//	документ      нет                локальный = результат, ожидающая запись относительно удаленной версии
//	nil           да                 локальный удален, документ не синхронизируется
//	nil           нет                локальный удален, ожидающее удаление относительно удаленной версии
func (p *pass) resolveConflict(ctx context.Context, doc *syncstate.DocumentState, remote *models.ChangeEvent) {
	id := doc.ID()
	local := doc.PendingWrite()
	if local == nil {
		return
	}
	handler := p.state.ConflictHandler()
	if handler == nil {
		return
	}

	conflictsTotal.Inc()
	p.stats.Conflicts++
	log := p.log.With("document_id", id, "local_op", local.OperationType, "remote_op", remote.OperationType)
	log.Info("Resolving conflict")

	var remoteVersion *version.Stamp
	if remote.OperationType != models.OperationDelete {
		stamp, err := version.FromDocument(remote.FullDocument)
		if err != nil {
			p.desyncWithError(ctx, id, KindDecoding, err)
			return
		}
		remoteVersion = stamp
	}

	var sanitizedRemote models.Document
	if remote.OperationType != models.OperationDelete {
		sanitizedRemote = version.Strip(remote.FullDocument)
	}

	forHandler := remote.Clone()
	forHandler.FullDocument = sanitizedRemote.Clone()
	resolved, err := handler.Resolve(ctx, id, local.Clone(), forHandler)
	if err != nil {
		p.pause(ctx, doc, KindResolution, fmt.Errorf("conflict handler: %w", err))
		return
	}
	if resolved != nil {
		resolved = query.NormalizeDocument(version.Strip(resolved))
		resolved[models.IDField] = id
	}

	acceptsRemote := (resolved == nil && sanitizedRemote == nil) ||
		(resolved != nil && sanitizedRemote != nil && query.DocumentsEqual(resolved, sanitizedRemote))

	var (
		event  *models.ChangeEvent
		result string
	)
	switch {
	case resolved != nil && acceptsRemote:
		if err := p.replaceLocal(ctx, id, resolved); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		if err := doc.ClearPendingWrite(ctx, remoteVersion); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		if remote.OperationType == models.OperationUpdate {
			event = models.NewUpdateEvent(p.ns, id, remote.UpdateDescription, resolved, false)
		} else {
			event = models.NewReplaceEvent(p.ns, id, resolved, false)
		}
		result = "remote accepted"

	case resolved != nil:
		if err := p.replaceLocal(ctx, id, resolved); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		if remote.OperationType == models.OperationDelete {
			event = models.NewInsertEvent(p.ns, id, resolved, true)
		} else {
			event = models.NewUpdateEvent(p.ns, id, query.Diff(sanitizedRemote, resolved), resolved, true)
		}
		if err := doc.RecordPendingWriteAt(ctx, p.t, remoteVersion, event); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		result = "resolved document pending"

	case acceptsRemote:
		if err := p.desync(ctx, id); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		event = models.NewDeleteEvent(p.ns, id, false)
		result = "remote delete accepted"

	default:
		if err := p.deleteLocal(ctx, id); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		event = models.NewDeleteEvent(p.ns, id, true)
		if err := doc.RecordPendingWriteAt(ctx, p.t, remoteVersion, event); err != nil {
			p.e.reportError(KindStore, p.ns, id, err)
			return
		}
		result = "delete pending"
	}

	log.Info("Conflict resolved", "result", result, "remote_version", remoteVersion)
	p.e.emitEvent(p.state, event)
}
