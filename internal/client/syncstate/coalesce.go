package syncstate

import "github.com/iudanet/docsync/internal/models"

// Coalesce объединяет новую локальную запись с уже ожидающей отправки:
//
//	insert + update/replace -> insert с полным документом новой записи
//	delete + insert         -> replace
//	иначе                   -> новая запись
func Coalesce(existing, next *models.ChangeEvent) *models.ChangeEvent {
	out := next.Clone()
	if existing == nil || out == nil {
		return out
	}

	switch {
	case existing.OperationType == models.OperationInsert &&
		(next.OperationType == models.OperationUpdate || next.OperationType == models.OperationReplace):
		out.OperationType = models.OperationInsert
		out.UpdateDescription = nil
	case existing.OperationType == models.OperationDelete && next.OperationType == models.OperationInsert:
		out.OperationType = models.OperationReplace
	}
	return out
}
