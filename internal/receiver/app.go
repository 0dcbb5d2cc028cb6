package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sejaconnect/connect/pkg/config"
)

// cacheVersion は現行のリソースキャッシュのバージョン名。
const cacheVersion = "connect-v1"

// notificationTag は予約通知の集約キー。
// 同一タグの通知は常に最新の1件だけが表示される。
const notificationTag = "new-booking"

// precacheResources はインストール時にキャッシュする固定リソースの一覧。
var precacheResources = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/favicon.jpg",
	"/notification-icon.png",
}

// Notifier は通知の表示と消去を行うプラットフォーム側の協調者。
type Notifier interface {
	// ShowNotification は通知を表示する。同一タグの既存通知は置き換えられる。
	ShowNotification(ctx context.Context, n Notification) error
	// CloseNotification は指定タグの表示中の通知を閉じる。
	// 表示中の通知が無い場合も成功として扱う。
	CloseNotification(ctx context.Context, tag string) error
}

// Window は開かれている管理画面のウィンドウを表す。
type Window interface {
	// Focused はウィンドウがフォーカスを持っているかどうかを返す。
	Focused() bool
	// Focus はウィンドウを前面に表示する。
	Focus(ctx context.Context) error
}

// ClientRegistry はウィンドウの列挙と制御を行うプラットフォーム側の協調者。
type ClientRegistry interface {
	// Windows は開かれているウィンドウの一覧を返す。
	Windows(ctx context.Context) ([]Window, error)
	// OpenWindow は指定URLの新しいウィンドウを開く。
	OpenWindow(ctx context.Context, url string) error
	// Claim は開かれている全ウィンドウの制御をこのワーカーに引き継ぐ。
	Claim(ctx context.Context) error
}

// Fetcher はプリキャッシュ対象のリソースを取得する関数。
type Fetcher func(ctx context.Context, path string) ([]byte, error)

// App はプッシュ受信ワーカーのハンドラ一式をWorkerに束ねた常駐アプリケーション。
//
// インストール時に固定リソースをプリキャッシュし、アクティベーション時に
// 旧バージョンのキャッシュを破棄する。プッシュメッセージは通知として表示し、
// 通知クリックでは開いている管理画面をフォーカスするか、無ければ新しく開く。
type App struct {
	// worker はライフサイクルとイベントループ。
	worker *Worker
	// cache はバージョン付きリソースキャッシュ。
	cache *ResourceCache
	// notifier は通知表示の協調者。
	notifier Notifier
	// clients はウィンドウ制御の協調者。
	clients ClientRegistry
	// fetch はリソース取得関数。
	fetch Fetcher
	// adminURL は通知クリック時に開く管理画面のURL。
	adminURL string
}

// NewApp は新しいAppを生成し、ハンドラをWorkerに登録する。
func NewApp(cfg config.Receiver, notifier Notifier, clients ClientRegistry, fetch Fetcher) *App {
	a := &App{
		worker:   NewWorker(),
		cache:    NewResourceCache(),
		notifier: notifier,
		clients:  clients,
		fetch:    fetch,
		adminURL: cfg.AdminURL,
	}

	a.worker.OnInstall(a.precache)
	a.worker.OnActivate(a.activate)
	a.worker.OnPush(a.handlePush)
	a.worker.OnNotificationClick(a.handleClick)

	return a
}

// Worker はライフサイクルとイベントキューへのアクセスを返す。
func (a *App) Worker() *Worker {
	return a.worker
}

// Cache はリソースキャッシュへのアクセスを返す。
func (a *App) Cache() *ResourceCache {
	return a.cache
}

// Start はワーカーのインストール・アクティベーションを実行し、イベントループを起動する。
func (a *App) Start(ctx context.Context) error {
	return a.worker.Start(ctx)
}

// precache は固定リソースの一覧を現行バージョンのキャッシュに格納する。
// いずれかのリソースの取得に失敗した場合、インストール全体が失敗する。
func (a *App) precache(ctx context.Context) error {
	for _, path := range precacheResources {
		body, err := a.fetch(ctx, path)
		if err != nil {
			return fmt.Errorf("リソースのプリキャッシュに失敗: path=%s: %w", path, err)
		}
		a.cache.Put(cacheVersion, path, body)
	}
	return nil
}

// activate は現行バージョン以外のキャッシュを破棄し、ウィンドウの制御を引き継ぐ。
func (a *App) activate(ctx context.Context) error {
	for _, removed := range a.cache.Prune(cacheVersion) {
		log.Printf("Receiver: 旧バージョンのキャッシュを削除しました: %s", removed)
	}
	return a.clients.Claim(ctx)
}

// pushMessage はプッシュメッセージ本文のJSON構造。
// ディスパッチャが構築する通知ペイロードと対応する。
type pushMessage struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// URL は通知クリック時に開くURL。
	URL string `json:"url"`
}

// handlePush はプッシュメッセージを通知として表示する。
//
// 本文が空のイベントは何もしない。デシリアライズに失敗したメッセージは
// 記録のみ行って破棄し、エラーとしては扱わない。配信網から届く内容を
// 受信側で巻き戻す手段はないため。
func (a *App) handlePush(ctx context.Context, e PushEvent) error {
	if len(e.Data) == 0 {
		return nil
	}

	var msg pushMessage
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		log.Printf("Receiver: プッシュメッセージのデシリアライズに失敗: %v", err)
		return nil
	}

	if msg.Title == "" {
		msg.Title = "Novo Agendamento Connect!"
	}
	if msg.Body == "" {
		msg.Body = "Você tem um novo agendamento no painel."
	}
	if msg.URL == "" {
		msg.URL = a.adminURL
	}

	return a.notifier.ShowNotification(ctx, Notification{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  "/notification-icon.png",
		Badge: "/notification-icon.png",
		Tag:   notificationTag,
		URL:   msg.URL,
	})
}

// handleClick は通知クリックを処理する。
// クリックされた通知を閉じた上で、開かれているウィンドウがあればフォーカス中の
// もの（無ければ先頭）を前面に表示し、1つも開かれていなければ管理画面を新しく開く。
func (a *App) handleClick(ctx context.Context, e NotificationClickEvent) error {
	if err := a.notifier.CloseNotification(ctx, e.Notification.Tag); err != nil {
		// 通知を閉じられなくてもウィンドウの制御は続行する
		log.Printf("Receiver: 通知のクローズに失敗: %v", err)
	}

	windows, err := a.clients.Windows(ctx)
	if err != nil {
		return fmt.Errorf("ウィンドウ一覧の取得に失敗: %w", err)
	}

	if len(windows) == 0 {
		return a.clients.OpenWindow(ctx, a.adminURL)
	}

	target := windows[0]
	for _, w := range windows {
		if w.Focused() {
			target = w
		}
	}
	return target.Focus(ctx)
}

// Resource は現行バージョンのキャッシュからリソースを返す。
// キャッシュに無い場合は取得して返す。取得結果はキャッシュに追加しない。
func (a *App) Resource(ctx context.Context, path string) ([]byte, error) {
	if body, ok := a.cache.Get(cacheVersion, path); ok {
		return body, nil
	}
	return a.fetch(ctx, path)
}
