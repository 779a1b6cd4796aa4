package query

import (
	"sort"

	"github.com/iudanet/docsync/internal/models"
)

// Diff вычисляет описание изменений между двумя версиями документа
// по полям верхнего уровня: измененные и добавленные поля попадают в UpdatedFields,
// удаленные в RemovedFields (в отсортированном порядке).
func Diff(before, after models.Document) *models.UpdateDescription {
	desc := &models.UpdateDescription{
		UpdatedFields: models.Document{},
	}

	for k, v := range after {
		old, exists := before[k]
		if !exists || !Equal(old, v) {
			desc.UpdatedFields[k] = Normalize(models.CloneValue(v))
		}
	}

	for k := range before {
		if _, exists := after[k]; !exists {
			desc.RemovedFields = append(desc.RemovedFields, k)
		}
	}
	sort.Strings(desc.RemovedFields)

	return desc
}
