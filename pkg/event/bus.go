package event

import "sync"

// Handler はイベントを受け取るコールバック。
type Handler func(Event)

// Bus はプロセス内のイベント購読ハブ。
// Publishは購読者のハンドラを同期的に呼び出すため、ハンドラは素早く戻ること。
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewBus は空のBusを生成する。
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe はハンドラを登録し、購読解除関数を返す。
// 解除関数は何度呼んでもよい。
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish は全購読者にイベントを配る。
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Len は現在の購読者数を返す。
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
