package syncer

import (
	"log/slog"
	"sync"
)

// dispatcher доставляет события и ошибки получателям в отдельной горутине,
// чтобы получатели никогда не вызывались под блокировками движка.
// Очередь не ограничена: отправитель не блокируется.
type dispatcher struct {
	logger *slog.Logger
	cond   *sync.Cond
	queue  []func()
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{logger: logger}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			d.call(fn)
		}
	}
}

// call изолирует панику получателя от движка
func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Listener panicked", "panic", r)
		}
	}()
	fn()
}

// close доставляет уже поставленные в очередь вызовы и останавливает горутину
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	d.wg.Wait()
}

// flush ждет доставки всего, что поставлено в очередь до вызова
func (d *dispatcher) flush() {
	done := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, func() { close(done) })
	d.cond.Signal()
	d.mu.Unlock()
	<-done
}
