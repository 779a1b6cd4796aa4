// Package changestream получает события изменений удаленного хранилища
// и складывает их в очередь namespace до следующего прохода синхронизации.
package changestream

import (
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// Queue последнее непрочитанное событие для каждого документа.
// Новое событие документа заменяет предыдущее.
type Queue struct {
	events map[string]*models.ChangeEvent
	mu     sync.Mutex
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{events: make(map[string]*models.ChangeEvent)}
}

// Enqueue запоминает событие документа id
func (q *Queue) Enqueue(id string, event *models.ChangeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events[id] = event
}

// DrainAll атомарно забирает все события и очищает очередь
func (q *Queue) DrainAll() map[string]*models.ChangeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = make(map[string]*models.ChangeEvent)
	return out
}

// TakeOne забирает событие документа id
func (q *Queue) TakeOne(id string) (*models.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev, ok := q.events[id]
	if ok {
		delete(q.events, id)
	}
	return ev, ok
}

// Peek возвращает событие документа id, не удаляя его
func (q *Queue) Peek(id string) (*models.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev, ok := q.events[id]
	return ev, ok
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
