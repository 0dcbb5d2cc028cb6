package receiver

import (
	"context"
	"log"
)

// LogNotifier は通知を標準ログに書き出すNotifier実装。
// デスクトップ通知基盤を持たない環境向けのスタブ。
type LogNotifier struct{}

// ShowNotification は通知の内容をログに出力する。
func (LogNotifier) ShowNotification(_ context.Context, n Notification) error {
	log.Printf("Receiver: 通知 [%s] %s: %s (url=%s)", n.Tag, n.Title, n.Body, n.URL)
	return nil
}

// CloseNotification は閉じる対象のタグをログに出力する。
func (LogNotifier) CloseNotification(_ context.Context, tag string) error {
	log.Printf("Receiver: 通知を閉じる [%s]", tag)
	return nil
}

// LogClientRegistry はウィンドウ制御をログ出力に置き換えるClientRegistry実装。
// ヘッドレス環境で動かすためのスタブ。
type LogClientRegistry struct{}

// Windows は常に空の一覧を返す。
func (LogClientRegistry) Windows(context.Context) ([]Window, error) {
	return nil, nil
}

// OpenWindow は開くはずだったURLをログに出力する。
func (LogClientRegistry) OpenWindow(_ context.Context, url string) error {
	log.Printf("Receiver: ウィンドウを開く: %s", url)
	return nil
}

// Claim は何もしない。
func (LogClientRegistry) Claim(context.Context) error {
	return nil
}
