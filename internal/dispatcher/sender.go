package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/sejaconnect/connect/pkg/config"
)

// WebPushSender はWeb Pushプロトコルによるプッシュ配信のSender実装。
// VAPID鍵ペアでリクエストに署名し、ブラウザベンダーの配信網へ送信する。
type WebPushSender struct {
	// vapid は署名資格情報。
	vapid config.VAPID
	// httpClient は配信網への通信に使用するHTTPクライアント。
	httpClient *http.Client
}

// NewWebPushSender は新しいWeb Push送信処理を生成する。
func NewWebPushSender(vapid config.VAPID) *WebPushSender {
	return &WebPushSender{
		vapid: vapid,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send は購読ペイロード宛にプッシュメッセージを送信する。
// 配信網が2xx以外を返した場合は*SendErrorを返す。
func (s *WebPushSender) Send(ctx context.Context, subscription string, message []byte) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(subscription), &sub); err != nil {
		return fmt.Errorf("購読ペイロードのデシリアライズに失敗: %w", err)
	}
	if sub.Endpoint == "" {
		return fmt.Errorf("購読ペイロードにendpointが含まれていません")
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, &sub, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.vapid.Subject,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("プッシュメッセージの送信に失敗: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendError{StatusCode: resp.StatusCode}
	}
	return nil
}
