// Package realtime は予約サービスのSSEフィードを購読するクライアントを提供する。
//
// 接続が切断された場合は一定間隔で自動的に再接続する。受信したイベントは
// イベント種別ごとに登録されたコールバックへ配信される。
package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sejaconnect/connect/pkg/event"
)

// Handler はSSEフィードから受信したイベントを処理するコールバック。
type Handler func(*event.Event)

// Listener は予約イベントのSSEフィードを購読するバックグラウンドクライアント。
type Listener struct {
	// baseURL は予約サービスのベースURL。
	baseURL string
	// token はフィード購読に使う管理者JWT。
	token string
	// httpClient はSSE接続用のHTTPクライアント。ストリーミングのためタイムアウトを持たない。
	httpClient *http.Client
	// reconnectWait は切断から再接続までの待ち時間。
	reconnectWait time.Duration
	// mu はhandlersへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// handlers はイベント種別ごとのコールバック。
	handlers map[event.Type][]Handler
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewListener は新しいListenerを生成する。
// baseURLには予約サービスのベースURL（例: "http://localhost:8080"）を指定する。
func NewListener(baseURL, token string) *Listener {
	return &Listener{
		baseURL:       baseURL,
		token:         token,
		httpClient:    &http.Client{},
		reconnectWait: 2 * time.Second,
		handlers:      make(map[event.Type][]Handler),
	}
}

// Handle はイベント種別に対するコールバックを登録する。
// Startの前に呼び出すこと。
func (l *Listener) Handle(eventType event.Type, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[eventType] = append(l.handlers[eventType], h)
}

// HandleBookingCreated は予約作成イベントのデータを受け取るコールバックを登録する。
func (l *Listener) HandleBookingCreated(fn func(event.BookingCreatedData)) {
	l.Handle(event.TypeBookingCreated, func(e *event.Event) {
		data, err := event.DecodeData[event.BookingCreatedData](e)
		if err != nil {
			log.Printf("Listener: BookingCreatedDataのデシリアライズに失敗: %v", err)
			return
		}
		fn(*data)
	})
}

// Start はバックグラウンドでSSEフィードの購読を開始する。
// 接続が切断された場合はコンテキストが取り消されるまで再接続を繰り返す。
func (l *Listener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	go func() {
		log.Println("Listener: SSEフィードの購読を開始します")
		for {
			if err := l.stream(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Listener: 接続が切断されました: %v", err)
			}

			select {
			case <-ctx.Done():
				log.Println("Listener: 購読を停止しました")
				return
			case <-time.After(l.reconnectWait):
			}
		}
	}()
}

// Stop はバックグラウンドの購読を停止する。
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

// stream はSSEフィードに接続し、切断されるまでイベントを読み続ける。
func (l *Listener) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/v1/bookings/stream", nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SSEフィードへの接続に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SSEフィードがエラーを返しました: status=%d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			// 空行がイベントの区切り
			if data != "" {
				l.dispatch(data)
				data = ""
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("SSEフィードの読み取りに失敗: %w", err)
	}
	return fmt.Errorf("フィードが終了しました")
}

// dispatch は受信したイベントをデシリアライズしてコールバックへ配信する。
// デシリアライズに失敗したイベントは記録のみ行い読み取りを継続する。
func (l *Listener) dispatch(data string) {
	var e event.Event
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		log.Printf("Listener: イベントのデシリアライズに失敗: %v", err)
		return
	}

	l.mu.Lock()
	handlers := l.handlers[e.EventType]
	l.mu.Unlock()

	for _, h := range handlers {
		h(&e)
	}
}
