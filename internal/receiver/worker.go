package receiver

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// State はワーカーのライフサイクル状態を表す。
type State int32

const (
	// StateNew は起動前の初期状態。
	StateNew State = iota
	// StateInstalling はインストールハンドラの実行中。
	StateInstalling
	// StateInstalled はインストール完了後、アクティベーション前の状態。
	StateInstalled
	// StateActivating はアクティベートハンドラの実行中。
	StateActivating
	// StateActive はイベントを受け付けている状態。
	StateActive
	// StateSuspended はSuspendにより停止した状態。
	StateSuspended
)

// String は状態の文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Notification は購読者へ表示する通知の内容を表す。
type Notification struct {
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// Icon は通知アイコンのパス。
	Icon string
	// Badge はバッジアイコンのパス。
	Badge string
	// Tag は通知の集約キー。同一タグの通知は最新の1件に置き換えられる。
	Tag string
	// URL は通知クリック時に開くURL。
	URL string
}

// PushEvent はプッシュ配信網から届いたメッセージイベント。
type PushEvent struct {
	// Data はメッセージ本文。空の場合もある。
	Data []byte
}

// NotificationClickEvent は表示中の通知がクリックされたイベント。
type NotificationClickEvent struct {
	// Notification はクリックされた通知。
	Notification Notification
}

// workerEvent はイベントループが処理する1件のイベント。
type workerEvent struct {
	push  *PushEvent
	click *NotificationClickEvent
}

// Worker はライフサイクル状態と単一のイベントループを持つ常駐ワーカー。
//
// Startでインストール・アクティベーションを順に実行した後、イベントループが
// 起動する。ループは1つのゴルーチンで動作し、各ハンドラは完了するまで
// 実行されてから次のイベントが取り出される。
type Worker struct {
	// mu は状態とハンドラ登録への並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// state は現在のライフサイクル状態。
	state State
	// events はイベントループへのキュー。
	events chan workerEvent
	// done はイベントループの終了を通知するチャネル。
	done chan struct{}
	// cancel はイベントループを停止するためのキャンセル関数。
	cancel context.CancelFunc

	installHandlers  []func(context.Context) error
	activateHandlers []func(context.Context) error
	pushHandlers     []func(context.Context, PushEvent) error
	clickHandlers    []func(context.Context, NotificationClickEvent) error
}

// NewWorker は新しいWorkerを生成する。
func NewWorker() *Worker {
	return &Worker{
		state:  StateNew,
		events: make(chan workerEvent, 16),
		done:   make(chan struct{}),
	}
}

// OnInstall はインストール時に実行するハンドラを登録する。Startの前に呼び出すこと。
func (w *Worker) OnInstall(h func(context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.installHandlers = append(w.installHandlers, h)
}

// OnActivate はアクティベーション時に実行するハンドラを登録する。Startの前に呼び出すこと。
func (w *Worker) OnActivate(h func(context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activateHandlers = append(w.activateHandlers, h)
}

// OnPush はプッシュイベントを処理するハンドラを登録する。Startの前に呼び出すこと。
func (w *Worker) OnPush(h func(context.Context, PushEvent) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushHandlers = append(w.pushHandlers, h)
}

// OnNotificationClick は通知クリックイベントを処理するハンドラを登録する。
// Startの前に呼び出すこと。
func (w *Worker) OnNotificationClick(h func(context.Context, NotificationClickEvent) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clickHandlers = append(w.clickHandlers, h)
}

// State は現在のライフサイクル状態を返す。
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// setState はライフサイクル状態を更新する。
func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start はインストールとアクティベーションを実行し、イベントループを起動する。
// いずれかのハンドラが失敗した場合、ワーカーはアクティブにならずエラーを返す。
func (w *Worker) Start(ctx context.Context) error {
	if w.State() != StateNew {
		return fmt.Errorf("ワーカーはすでに起動しています: state=%s", w.State())
	}

	w.setState(StateInstalling)
	for _, h := range w.installHandlers {
		if err := h(ctx); err != nil {
			return fmt.Errorf("インストールに失敗: %w", err)
		}
	}
	w.setState(StateInstalled)

	w.setState(StateActivating)
	for _, h := range w.activateHandlers {
		if err := h(ctx); err != nil {
			return fmt.Errorf("アクティベーションに失敗: %w", err)
		}
	}
	w.setState(StateActive)

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(ctx)

	return nil
}

// loop はキューからイベントを1件ずつ取り出してハンドラを実行する。
// ハンドラの実行中に停止が要求された場合、実行中のハンドラの完了を待ってから終了する。
func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.events:
			w.handle(ctx, e)
		}
	}
}

// handle は1件のイベントに対して登録済みハンドラを順次実行する。
// ハンドラのエラーは記録のみ行い、ループは継続する。
func (w *Worker) handle(ctx context.Context, e workerEvent) {
	switch {
	case e.push != nil:
		for _, h := range w.pushHandlers {
			if err := h(ctx, *e.push); err != nil {
				log.Printf("Worker: プッシュハンドラが失敗: %v", err)
			}
		}
	case e.click != nil:
		for _, h := range w.clickHandlers {
			if err := h(ctx, *e.click); err != nil {
				log.Printf("Worker: 通知クリックハンドラが失敗: %v", err)
			}
		}
	}
}

// Push はプッシュイベントをキューに追加する。
// ワーカーがアクティブでない場合はエラーを返す。
func (w *Worker) Push(data []byte) error {
	return w.enqueue(workerEvent{push: &PushEvent{Data: data}})
}

// NotificationClick は通知クリックイベントをキューに追加する。
// ワーカーがアクティブでない場合はエラーを返す。
func (w *Worker) NotificationClick(n Notification) error {
	return w.enqueue(workerEvent{click: &NotificationClickEvent{Notification: n}})
}

// enqueue はイベントをキューに追加する。キューが満杯の場合はエラーを返す。
func (w *Worker) enqueue(e workerEvent) error {
	if w.State() != StateActive {
		return fmt.Errorf("ワーカーがアクティブではありません: state=%s", w.State())
	}

	select {
	case w.events <- e:
		return nil
	default:
		return fmt.Errorf("イベントキューが満杯です")
	}
}

// Suspend はイベントループを停止する。
// 実行中のハンドラがある場合、その完了を待ってから復帰する。
func (w *Worker) Suspend() {
	if w.State() != StateActive {
		return
	}

	w.cancel()
	<-w.done
	w.setState(StateSuspended)
}
