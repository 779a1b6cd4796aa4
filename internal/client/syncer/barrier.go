package syncer

import "sync"

// Barrier пропускает операции движка и позволяет дождаться завершения всех
// начатых, не пуская новые (используется при переинициализации)
type Barrier struct {
	cond    *sync.Cond
	mu      sync.Mutex
	active  int
	blocked bool
}

// NewBarrier creates an open barrier.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Enter ждет, пока барьер открыт, и регистрирует операцию
func (b *Barrier) Enter() {
	b.mu.Lock()
	for b.blocked {
		b.cond.Wait()
	}
	b.active++
	b.mu.Unlock()
}

// Leave завершает операцию
func (b *Barrier) Leave() {
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	b.cond.Broadcast()
}

// BlockAndWait закрывает барьер и ждет завершения начатых операций
func (b *Barrier) BlockAndWait() {
	b.mu.Lock()
	for b.blocked {
		b.cond.Wait()
	}
	b.blocked = true
	for b.active > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Unblock открывает барьер
func (b *Barrier) Unblock() {
	b.mu.Lock()
	b.blocked = false
	b.mu.Unlock()
	b.cond.Broadcast()
}
