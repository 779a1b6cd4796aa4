package docstore

import (
	"context"
	"errors"
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// ErrStreamClosed возвращается Next закрытого потока изменений.
// Поток закрывается и тогда, когда подписчик не успевает читать события.
var ErrStreamClosed = errors.New("change stream closed")

const defaultStreamBuffer = 256

// Hub рассылает события изменений подписчикам, отфильтрованным по namespace и _id.
// Publish подходит в качестве ChangeObserver для Store.
type Hub struct {
	subs   map[*hubStream]struct{}
	mu     sync.RWMutex
	buffer int
}

// NewHub создает хаб с буфером событий на каждого подписчика
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Hub{
		subs:   make(map[*hubStream]struct{}),
		buffer: buffer,
	}
}

var _ Watcher = (*Hub)(nil)

// Publish доставляет событие всем подходящим подписчикам без блокировки
func (h *Hub) Publish(event *models.ChangeEvent) {
	h.mu.RLock()
	var slow []*hubStream
	for sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.events <- event.Clone():
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		_ = sub.Close()
	}
}

// Watch подписывается на события документов ids в namespace ns.
// Пустой ids означает все документы namespace.
func (h *Hub) Watch(ctx context.Context, ns models.Namespace, ids []string) (ChangeStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &hubStream{
		hub:    h,
		ns:     ns,
		events: make(chan *models.ChangeEvent, h.buffer),
		done:   make(chan struct{}),
	}
	if len(ids) > 0 {
		sub.ids = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			sub.ids[id] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, nil
}

// Subscribers возвращает количество открытых потоков
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *hubStream) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

type hubStream struct {
	hub    *Hub
	ids    map[string]struct{}
	events chan *models.ChangeEvent
	done   chan struct{}
	ns     models.Namespace
	once   sync.Once
}

func (s *hubStream) wants(event *models.ChangeEvent) bool {
	if event.Namespace != s.ns {
		return false
	}
	if s.ids == nil {
		return true
	}
	_, ok := s.ids[event.DocumentID]
	return ok
}

func (s *hubStream) Next(ctx context.Context) (*models.ChangeEvent, error) {
	// события, уже попавшие в буфер, отдаются даже после закрытия
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return nil, ErrStreamClosed
	}
}

func (s *hubStream) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
	return nil
}
