package booking

import (
	"sync"

	"github.com/sejaconnect/connect/pkg/event"
)

// Broker は予約イベントを SSE 購読者へファンアウトするインメモリブローカー。
// Publish は購読者のチャネルが詰まっていてもブロックしない。
// 配信が追いつかない購読者のイベントは破棄される。
type Broker struct {
	mu   sync.Mutex
	subs map[chan *event.Event]struct{}
}

// NewBroker は新しい Broker を返す。
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan *event.Event]struct{}),
	}
}

// Subscribe は購読チャネルと購読解除関数を返す。
// 購読解除関数は複数回呼んでも安全。
func (b *Broker) Subscribe() (<-chan *event.Event, func()) {
	ch := make(chan *event.Event, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish は全購読者へイベントを配信する。
func (b *Broker) Publish(e *event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// バッファ満杯の購読者はスキップする
		}
	}
}

// Len は現在の購読者数を返す。
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
