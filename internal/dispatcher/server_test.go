package dispatcher

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	dispatcherdb "github.com/sejaconnect/connect/internal/dispatcher/db"
	"github.com/sejaconnect/connect/pkg/config"
	"github.com/sejaconnect/connect/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のディスパッチャサーバーをインメモリSQLiteで構築する。
// プッシュ送信はfakeSenderに差し替え、JWTミドルウェアの代わりに
// テスト用のユーザーID設定ミドルウェアを使用する。
func setupTestServer(t *testing.T, sender Sender, vapid config.VAPID) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	cfg := config.Dispatcher{
		Port:    "0",
		VAPID:   vapid,
		SiteURL: "https://sejaconnect.com.br",
	}

	router := gin.New()
	queries := dispatcherdb.New(sqlDB)
	s := &Server{
		router:     router,
		port:       "0",
		queries:    queries,
		db:         sqlDB,
		dispatcher: NewDispatcher(queries, sender, cfg),
		cfg:        cfg,
	}

	webhooks := router.Group("/webhooks")
	webhooks.Use(middleware.CORSAllowAll())
	{
		webhooks.POST("/bookings", s.handleBookingWebhook())
		webhooks.OPTIONS("/bookings", func(*gin.Context) {})
	}

	api := router.Group("/api/v1")
	{
		push := api.Group("/push")
		{
			push.GET("/public-key", s.handlePublicKey())

			authed := push.Group("/subscriptions")
			authed.Use(func(c *gin.Context) {
				if userID := c.GetHeader("X-User-ID"); userID != "" {
					c.Set("user_id", userID)
				}
				c.Next()
			})
			{
				authed.POST("", s.handleRegisterSubscription())
				authed.DELETE("", s.handleUnsubscribe())
			}
		}
	}

	return s, router
}

// postJSON はテスト用にJSONボディでPOSTリクエストを実行するヘルパー関数。
func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHandleBookingWebhook は予約作成Webhookのハンドラを検証する。
func TestHandleBookingWebhook(t *testing.T) {
	t.Parallel()

	t.Run("recordキーの下にネストされた予約で配信が実行されること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		s, router := setupTestServer(t, sender, testVAPID)
		createTestSubscription(t, s.queries, "sub-1", "https://push.example.com/ep-1")

		w := postJSON(t, router, "/webhooks/bookings",
			`{"record": {"id": "booking-1", "name": "Maria", "date": "2025-03-10", "time": "14:00"}}`)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		var resp dispatchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのデシリアライズに失敗: %v", err)
		}
		if !resp.Success {
			t.Error("Success = false, want true")
		}
		if resp.Sent == nil || *resp.Sent != 1 {
			t.Errorf("Sent = %v, want 1", resp.Sent)
		}
		if resp.Total == nil || *resp.Total != 1 {
			t.Errorf("Total = %v, want 1", resp.Total)
		}
	})

	t.Run("予約行がボディ直下に置かれていても受け付けること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		s, router := setupTestServer(t, sender, testVAPID)
		createTestSubscription(t, s.queries, "sub-1", "https://push.example.com/ep-1")

		w := postJSON(t, router, "/webhooks/bookings",
			`{"id": "booking-1", "name": "Maria", "date": "2025-03-10", "time": "14:00"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if sender.sentCount() != 1 {
			t.Errorf("送信試行回数 = %d, want 1", sender.sentCount())
		}
	})

	t.Run("idの無いペイロードで400が返り配信が試行されないこと", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		s, router := setupTestServer(t, sender, testVAPID)
		createTestSubscription(t, s.queries, "sub-1", "https://push.example.com/ep-1")

		w := postJSON(t, router, "/webhooks/bookings", `{}`)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if sender.sentCount() != 0 {
			t.Errorf("送信試行回数 = %d, want 0", sender.sentCount())
		}
	})

	t.Run("不正なJSONボディで400が返ること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		_, router := setupTestServer(t, sender, testVAPID)

		w := postJSON(t, router, "/webhooks/bookings", `{invalid json`)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("VAPID鍵が未設定の場合に500が返り配信が試行されないこと", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		s, router := setupTestServer(t, sender, config.VAPID{})
		createTestSubscription(t, s.queries, "sub-1", "https://push.example.com/ep-1")

		w := postJSON(t, router, "/webhooks/bookings", `{"record": {"id": "booking-1"}}`)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if sender.sentCount() != 0 {
			t.Errorf("送信試行回数 = %d, want 0", sender.sentCount())
		}
	})

	t.Run("一部の配信が失敗しても200と集計結果が返ること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{errs: map[string]error{
			"ep-b": &SendError{StatusCode: 410},
			"ep-c": &SendError{StatusCode: 503},
		}}
		s, router := setupTestServer(t, sender, testVAPID)
		createTestSubscription(t, s.queries, "sub-a", "https://push.example.com/ep-a")
		createTestSubscription(t, s.queries, "sub-b", "https://push.example.com/ep-b")
		createTestSubscription(t, s.queries, "sub-c", "https://push.example.com/ep-c")

		w := postJSON(t, router, "/webhooks/bookings", `{"record": {"id": "booking-1", "name": "Maria"}}`)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		var resp dispatchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのデシリアライズに失敗: %v", err)
		}
		if !resp.Success {
			t.Error("Success = false, want true")
		}
		if resp.Sent == nil || *resp.Sent != 1 {
			t.Errorf("Sent = %v, want 1", resp.Sent)
		}
		if resp.Total == nil || *resp.Total != 3 {
			t.Errorf("Total = %v, want 3", resp.Total)
		}
	})

	t.Run("プリフライトリクエストで204とCORSヘッダーが返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t, &fakeSender{}, testVAPID)

		req := httptest.NewRequest(http.MethodOptions, "/webhooks/bookings", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
		}
	})
}

// TestHandleRegisterSubscription は購読登録のハンドラを検証する。
func TestHandleRegisterSubscription(t *testing.T) {
	t.Parallel()

	t.Run("購読が登録されストアに保存されること", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t, &fakeSender{}, testVAPID)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/push/subscriptions", bytes.NewBufferString(
			`{"endpoint": "https://push.example.com/ep-1", "subscription": {"endpoint": "https://push.example.com/ep-1", "keys": {"p256dh": "key", "auth": "auth"}}}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "admin-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		sub, err := s.queries.GetPushSubscriptionByEndpoint(context.Background(), "https://push.example.com/ep-1")
		if err != nil {
			t.Fatalf("登録された購読の取得に失敗: %v", err)
		}
		if !sub.UserID.Valid || sub.UserID.String != "admin-1" {
			t.Errorf("UserID = %+v, want admin-1", sub.UserID)
		}
	})

	t.Run("同一エンドポイントの再登録で購読ペイロードが更新されること", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t, &fakeSender{}, testVAPID)

		first := `{"endpoint": "https://push.example.com/ep-1", "subscription": {"endpoint": "https://push.example.com/ep-1", "keys": {"p256dh": "old", "auth": "old"}}}`
		second := `{"endpoint": "https://push.example.com/ep-1", "subscription": {"endpoint": "https://push.example.com/ep-1", "keys": {"p256dh": "new", "auth": "new"}}}`

		for _, body := range []string{first, second} {
			w := postJSON(t, router, "/api/v1/push/subscriptions", body)
			if w.Code != http.StatusCreated {
				t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusCreated, w.Body.String())
			}
		}

		subs, err := s.queries.ListPushSubscriptions(context.Background())
		if err != nil {
			t.Fatalf("購読一覧の取得に失敗: %v", err)
		}
		if len(subs) != 1 {
			t.Fatalf("購読数 = %d, want 1", len(subs))
		}
		if got := subs[0].Subscription; !bytes.Contains([]byte(got), []byte("new")) {
			t.Errorf("Subscription = %q, 更新後のペイロードを含むべき", got)
		}
	})

	t.Run("endpointの無いリクエストで400が返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t, &fakeSender{}, testVAPID)

		w := postJSON(t, router, "/api/v1/push/subscriptions", `{"subscription": {"keys": {}}}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleUnsubscribe は購読解除のハンドラを検証する。
func TestHandleUnsubscribe(t *testing.T) {
	t.Parallel()

	t.Run("登録済みの購読が解除されること", func(t *testing.T) {
		t.Parallel()

		s, router := setupTestServer(t, &fakeSender{}, testVAPID)
		createTestSubscription(t, s.queries, "sub-1", "https://push.example.com/ep-1")

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/push/subscriptions", bytes.NewBufferString(
			`{"endpoint": "https://push.example.com/ep-1"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := len(listEndpoints(t, s.queries)); got != 0 {
			t.Errorf("残存購読数 = %d, want 0", got)
		}
	})

	t.Run("存在しない購読の解除も成功として扱われること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t, &fakeSender{}, testVAPID)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/push/subscriptions", bytes.NewBufferString(
			`{"endpoint": "https://push.example.com/gone"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestHandlePublicKey はVAPID公開鍵エンドポイントを検証する。
func TestHandlePublicKey(t *testing.T) {
	t.Parallel()

	t.Run("設定済みの公開鍵が返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t, &fakeSender{}, testVAPID)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/push/public-key", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのデシリアライズに失敗: %v", err)
		}
		if resp["public_key"] != testVAPID.PublicKey {
			t.Errorf("public_key = %q, want %q", resp["public_key"], testVAPID.PublicKey)
		}
	})

	t.Run("鍵が未設定の場合に500が返ること", func(t *testing.T) {
		t.Parallel()

		_, router := setupTestServer(t, &fakeSender{}, config.VAPID{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/push/public-key", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}
