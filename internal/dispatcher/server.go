package dispatcher

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	dispatcherdb "github.com/sejaconnect/connect/internal/dispatcher/db"
	"github.com/sejaconnect/connect/pkg/config"
	"github.com/sejaconnect/connect/pkg/event"
	"github.com/sejaconnect/connect/pkg/middleware"
)

// Server は通知ディスパッチャサービスのHTTPサーバー。
// 購読ストアの管理と、予約作成Webhookからのプッシュ配信を担当する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *dispatcherdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// dispatcher はプッシュ配信のコアロジック。
	dispatcher *Dispatcher
	// cfg はサービスの設定。
	cfg config.Dispatcher
}

// NewServer は新しいディスパッチャサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(cfg config.Dispatcher) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	queries := dispatcherdb.New(sqlDB)
	s := &Server{
		router:     router,
		port:       cfg.Port,
		queries:    queries,
		db:         sqlDB,
		dispatcher: NewDispatcher(queries, NewWebPushSender(cfg.VAPID), cfg),
		cfg:        cfg,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// データベーストリガー相当のWebhook。呼び出し元のオリジンを限定できないため
	// 全オリジンを許可する。
	webhooks := s.router.Group("/webhooks")
	webhooks.Use(middleware.CORSAllowAll())
	{
		webhooks.POST("/bookings", s.handleBookingWebhook())
		// プリフライトはCORSミドルウェアが204で応答する
		webhooks.OPTIONS("/bookings", func(*gin.Context) {})
	}

	api := s.router.Group("/api/v1")
	{
		push := api.Group("/push")
		{
			// ブラウザのsubscribe呼び出しに使う公開鍵の取得
			push.GET("/public-key", s.handlePublicKey())

			// 購読の登録・解除は管理者のみ
			authed := push.Group("/subscriptions")
			authed.Use(middleware.JWTAuth(s.cfg.JWTSecret))
			{
				authed.POST("", s.handleRegisterSubscription())
				authed.DELETE("", s.handleUnsubscribe())
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dispatcher"})
	})
}

// webhookEnvelope はWebhookリクエストボディの外側の構造。
// トリガー実装によって予約行が `record` キーの下にネストされる場合と
// ボディ直下に置かれる場合の両方を受け付ける。
type webhookEnvelope struct {
	// Record はネストされた予約行。
	Record json.RawMessage `json:"record"`
}

// dispatchResponse はWebhookレスポンスのJSON構造。
type dispatchResponse struct {
	// Success は呼び出しが完了したかどうか。個々の配信失敗では偽にならない。
	Success bool `json:"success"`
	// Sent は配信に成功した購読数。
	Sent *int `json:"sent,omitempty"`
	// Total は配信を試行した購読数。
	Total *int `json:"total,omitempty"`
	// Error はエラーメッセージ。
	Error string `json:"error,omitempty"`
}

// handleBookingWebhook は予約作成Webhookを処理するハンドラを返す。
// 配信を試行した場合は個々の失敗に関わらず200を返す。トリガー元の予約書き込みは
// すでに成功しており、通知層の問題で巻き戻されるべきではないため。
func (s *Server) handleBookingWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, dispatchResponse{Success: false, Error: "リクエストボディの読み取りに失敗しました"})
			return
		}

		booking, err := parseBookingRecord(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, dispatchResponse{Success: false, Error: "ペイロードが不正です"})
			return
		}

		result, err := s.dispatcher.Dispatch(c.Request.Context(), *booking)
		if err != nil {
			log.Printf("[Dispatcher] 配信呼び出しが失敗: booking_id=%s error=%v", booking.ID, err)
			c.JSON(http.StatusInternalServerError, dispatchResponse{Success: false, Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, dispatchResponse{Success: true, Sent: &result.Sent, Total: &result.Total})
	}
}

// parseBookingRecord はWebhookボディから予約行を取り出す。
// `{"record": {...}}` 形式と予約行そのものの両方を受け付け、
// 識別子であるidが無い場合はエラーを返す。
func parseBookingRecord(body []byte) (*event.BookingCreatedData, error) {
	record := body

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("ボディのデシリアライズに失敗: %w", err)
	}
	if len(envelope.Record) > 0 {
		record = envelope.Record
	}

	var booking event.BookingCreatedData
	if err := json.Unmarshal(record, &booking); err != nil {
		return nil, fmt.Errorf("予約行のデシリアライズに失敗: %w", err)
	}
	if booking.ID == "" {
		return nil, fmt.Errorf("予約行にidが含まれていません")
	}
	return &booking, nil
}

// registerRequest は購読登録リクエストのJSON構造。
type registerRequest struct {
	// Endpoint はプッシュ配信先のエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
	// Subscription はブラウザが生成した購読ペイロード（endpointと暗号鍵を含む）。
	Subscription json.RawMessage `json:"subscription" binding:"required"`
}

// handleRegisterSubscription は購読の登録を処理するハンドラを返す。
// 同一エンドポイントの再登録は購読ペイロードの更新として扱う。
func (s *Server) handleRegisterSubscription() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		userID := sql.NullString{}
		if id := middleware.GetUserID(c); id != "" {
			userID = sql.NullString{String: id, Valid: true}
		}

		err := s.queries.UpsertPushSubscription(c.Request.Context(), dispatcherdb.UpsertPushSubscriptionParams{
			ID:           uuid.New().String(),
			Endpoint:     req.Endpoint,
			Subscription: string(req.Subscription),
			UserID:       userID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読の登録に失敗しました"})
			log.Printf("[Dispatcher] 購読登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "購読を登録しました"})
	}
}

// unsubscribeRequest は購読解除リクエストのJSON構造。
type unsubscribeRequest struct {
	// Endpoint は解除するエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
}

// handleUnsubscribe は購読の解除を処理するハンドラを返す。
// エンドポイントによる削除は冪等であり、存在しない購読の解除も成功として扱う。
func (s *Server) handleUnsubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req unsubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.queries.DeletePushSubscriptionByEndpoint(c.Request.Context(), req.Endpoint); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読の解除に失敗しました"})
			log.Printf("[Dispatcher] 購読解除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "購読を解除しました"})
	}
}

// handlePublicKey はVAPID公開鍵を返すハンドラを返す。
func (s *Server) handlePublicKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.VAPID.Valid() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "VAPID鍵が設定されていません"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"public_key": s.cfg.VAPID.PublicKey})
	}
}
