package dispatcher

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/sejaconnect/connect/pkg/config"
)

// newTestSender は実際に生成したVAPID鍵ペアを持つWebPushSenderを構築する。
func newTestSender(t *testing.T) *WebPushSender {
	t.Helper()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("VAPID鍵の生成に失敗: %v", err)
	}

	return NewWebPushSender(config.VAPID{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subject:    "mailto:test@example.com",
	})
}

// newTestSubscription はテスト用の購読ペイロード（有効な暗号鍵付き）を生成する。
func newTestSubscription(t *testing.T, endpoint string) string {
	t.Helper()

	// ブラウザが生成するものと同等のP-256鍵ペアと認証シークレットを用意する
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("購読鍵の生成に失敗: %v", err)
	}
	authSecret := make([]byte, 16)
	if _, err := rand.Read(authSecret); err != nil {
		t.Fatalf("認証シークレットの生成に失敗: %v", err)
	}

	return fmt.Sprintf(`{"endpoint":%q,"keys":{"p256dh":%q,"auth":%q}}`,
		endpoint,
		base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authSecret),
	)
}

// TestWebPushSenderSend はWeb Push送信処理のステータスコード分類を検証する。
func TestWebPushSenderSend(t *testing.T) {
	t.Parallel()

	t.Run("配信網が201を返した場合に成功すること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("Method = %q, want %q", r.Method, http.MethodPost)
			}
			if got := r.Header.Get("Content-Encoding"); got != "aes128gcm" {
				t.Errorf("Content-Encoding = %q, want %q", got, "aes128gcm")
			}
			w.WriteHeader(http.StatusCreated)
		}))
		t.Cleanup(server.Close)

		sender := newTestSender(t)
		err := sender.Send(context.Background(), newTestSubscription(t, server.URL), []byte(`{"title":"test"}`))
		if err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
	})

	t.Run("配信網が410を返した場合に恒久エラーが返ること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		t.Cleanup(server.Close)

		sender := newTestSender(t)
		err := sender.Send(context.Background(), newTestSubscription(t, server.URL), []byte(`{"title":"test"}`))

		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			t.Fatalf("err = %v, want *SendError", err)
		}
		if sendErr.StatusCode != http.StatusGone {
			t.Errorf("StatusCode = %d, want %d", sendErr.StatusCode, http.StatusGone)
		}
		if !sendErr.Permanent() {
			t.Error("Permanent() = false, want true")
		}
	})

	t.Run("配信網が503を返した場合に一時エラーが返ること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(server.Close)

		sender := newTestSender(t)
		err := sender.Send(context.Background(), newTestSubscription(t, server.URL), []byte(`{"title":"test"}`))

		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			t.Fatalf("err = %v, want *SendError", err)
		}
		if sendErr.Permanent() {
			t.Error("Permanent() = true, want false")
		}
	})

	t.Run("購読ペイロードが不正なJSONの場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		sender := newTestSender(t)
		if err := sender.Send(context.Background(), "{invalid json", []byte(`{}`)); err == nil {
			t.Fatal("Send()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("endpointの無い購読ペイロードでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		sender := newTestSender(t)
		if err := sender.Send(context.Background(), `{"keys":{"p256dh":"k","auth":"a"}}`, []byte(`{}`)); err == nil {
			t.Fatal("Send()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestSendErrorPermanent は恒久/一時エラーの分類を検証する。
func TestSendErrorPermanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{name: "404は恒久エラーであること", statusCode: 404, want: true},
		{name: "410は恒久エラーであること", statusCode: 410, want: true},
		{name: "429は一時エラーであること", statusCode: 429, want: false},
		{name: "500は一時エラーであること", statusCode: 500, want: false},
		{name: "503は一時エラーであること", statusCode: 503, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := &SendError{StatusCode: tt.statusCode}
			if got := err.Permanent(); got != tt.want {
				t.Errorf("Permanent() = %v, want %v", got, tt.want)
			}
		})
	}
}
