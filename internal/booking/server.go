package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	bookingdb "github.com/sejaconnect/connect/internal/booking/db"
	"github.com/sejaconnect/connect/pkg/config"
	"github.com/sejaconnect/connect/pkg/event"
	"github.com/sejaconnect/connect/pkg/httpclient"
	"github.com/sejaconnect/connect/pkg/middleware"
	"github.com/sejaconnect/connect/pkg/ratelimit"
)

// webhookTimeout はディスパッチャWebhook呼び出しの最大待ち時間。
const webhookTimeout = 30 * time.Second

// Server は予約サービスのHTTPサーバー。
// 予約の受付・状態遷移・SSEフィードの配信と、
// 予約作成時のディスパッチャWebhook呼び出しを担当する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *bookingdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// broker はSSE購読者へのイベントファンアウト。
	broker *Broker
	// dispatcher はディスパッチャサービスへのHTTPクライアント。
	dispatcher *httpclient.Client
	// limiter は公開エンドポイントのレート制限カウンタ。nilの場合は制限しない。
	limiter ratelimit.Counter
	// cfg はサービスの設定。
	cfg config.Booking
}

// NewServer は新しい予約サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションを行う。
func NewServer(cfg config.Booking) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	var limiter ratelimit.Counter
	if cfg.RedisAddr != "" {
		limiter = ratelimit.NewRedisCounter(cfg.RedisAddr)
	}

	s := &Server{
		router:     router,
		port:       cfg.Port,
		queries:    bookingdb.New(sqlDB),
		db:         sqlDB,
		broker:     NewBroker(),
		dispatcher: httpclient.New(cfg.DispatcherURL),
		limiter:    limiter,
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
	api := s.router.Group("/api/v1")
	{
		bookings := api.Group("/bookings")
		{
			// 公開の予約フォームからの受付。連続投稿を抑制する
			public := bookings.Group("")
			if s.limiter != nil {
				public.Use(ratelimit.Middleware(s.limiter, 20, time.Minute))
			}
			public.POST("", s.handleCreateBooking())

			// 一覧・状態遷移・SSEフィードは管理者のみ
			admin := bookings.Group("")
			admin.Use(middleware.JWTAuth(s.cfg.JWTSecret))
			{
				admin.GET("", s.handleListBookings())
				admin.GET("/stream", s.handleStream())
				admin.PUT("/:id/confirm", s.handleTransition("confirmed", "pending", event.TypeBookingConfirmed))
				admin.PUT("/:id/complete", s.handleTransition("completed", "confirmed", event.TypeBookingCompleted))
				admin.DELETE("/:id", s.handleRejectBooking())
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "booking"})
	})
}

// createBookingRequest は予約作成リクエストのJSON構造。
type createBookingRequest struct {
	// Name は予約者の氏名。
	Name string `json:"name" binding:"required"`
	// Email は予約者のメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Phone は予約者の電話番号。
	Phone string `json:"phone" binding:"required"`
	// Type は予約種別（recording または meeting）。
	Type string `json:"type" binding:"required,oneof=recording meeting"`
	// Date は予約日（YYYY-MM-DD形式）。
	Date string `json:"date" binding:"required"`
	// Time は予約時刻（HH:MM形式）。
	Time string `json:"time" binding:"required"`
	// Message は予約者からの任意メッセージ。
	Message string `json:"message"`
}

// handleCreateBooking は公開フォームからの予約作成を処理するハンドラを返す。
// 予約の保存に成功した時点で201を返す。顧客集計・監査ログ・通知の失敗は
// ログに記録するのみで、予約の受付自体は巻き戻さない。
func (s *Server) handleCreateBooking() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		ctx := c.Request.Context()
		id := uuid.New().String()

		err := s.queries.CreateBooking(ctx, bookingdb.CreateBookingParams{
			ID:      id,
			Name:    req.Name,
			Email:   req.Email,
			Phone:   req.Phone,
			Type:    req.Type,
			Date:    req.Date,
			Time:    req.Time,
			Message: nullString(req.Message),
		})
		if err != nil {
			log.Printf("[Booking] 予約の保存に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "予約の保存に失敗しました"})
			return
		}

		data := event.BookingCreatedData{
			ID:      id,
			Name:    req.Name,
			Email:   req.Email,
			Phone:   req.Phone,
			Type:    req.Type,
			Date:    req.Date,
			Time:    req.Time,
			Message: req.Message,
			Status:  "pending",
		}

		// 顧客集計の更新。失敗しても予約は成立している
		err = s.queries.UpsertClient(ctx, bookingdb.UpsertClientParams{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Email:       req.Email,
			Phone:       req.Phone,
			LastBooking: nullString(req.Date),
		})
		if err != nil {
			log.Printf("[Booking] 顧客集計の更新に失敗: booking_id=%s error=%v", id, err)
		}

		s.writeAudit(ctx, c, "INSERT", id, nil, data)
		s.publishEvent(id, event.TypeBookingCreated, data)

		// ディスパッチャへの通知は非同期に行い、結果は予約の成否に影響させない
		go s.notifyDispatcher(data)

		c.JSON(http.StatusCreated, gin.H{"id": id, "status": "pending"})
	}
}

// handleListBookings は予約一覧（新しい順）を返すハンドラを返す。
func (s *Server) handleListBookings() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := s.queries.ListBookings(c.Request.Context())
		if err != nil {
			log.Printf("[Booking] 予約一覧の取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "予約一覧の取得に失敗しました"})
			return
		}

		items := make([]gin.H, 0, len(bookings))
		for _, b := range bookings {
			items = append(items, bookingJSON(b))
		}
		c.JSON(http.StatusOK, gin.H{"bookings": items, "total": len(items)})
	}
}

// handleTransition は予約の状態遷移を処理するハンドラを返す。
// fromStatus以外の状態からの遷移は409を返す。連絡先や日時は変更できない。
func (s *Server) handleTransition(toStatus, fromStatus string, eventType event.Type) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		current, err := s.queries.GetBookingByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "予約が見つかりません"})
			return
		}
		if err != nil {
			log.Printf("[Booking] 予約の取得に失敗: booking_id=%s error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "予約の取得に失敗しました"})
			return
		}
		if current.Status != fromStatus {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("状態 %s の予約は %s に遷移できません", current.Status, toStatus),
			})
			return
		}

		affected, err := s.queries.UpdateBookingStatus(ctx, bookingdb.UpdateBookingStatusParams{
			Status: toStatus,
			ID:     id,
		})
		if err != nil {
			log.Printf("[Booking] 状態遷移に失敗: booking_id=%s error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "状態の更新に失敗しました"})
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "予約が見つかりません"})
			return
		}

		s.writeAudit(ctx, c, "UPDATE", id,
			gin.H{"status": current.Status},
			gin.H{"status": toStatus},
		)
		s.publishEvent(id, eventType, event.BookingStatusChangedData{ID: id, Status: toStatus})

		c.JSON(http.StatusOK, gin.H{"id": id, "status": toStatus})
	}
}

// handleRejectBooking は予約の却下（行の削除）を処理するハンドラを返す。
func (s *Server) handleRejectBooking() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		current, err := s.queries.GetBookingByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "予約が見つかりません"})
			return
		}
		if err != nil {
			log.Printf("[Booking] 予約の取得に失敗: booking_id=%s error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "予約の取得に失敗しました"})
			return
		}

		if _, err := s.queries.DeleteBooking(ctx, id); err != nil {
			log.Printf("[Booking] 予約の削除に失敗: booking_id=%s error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "予約の削除に失敗しました"})
			return
		}

		s.writeAudit(ctx, c, "DELETE", id, bookingJSON(current), nil)
		s.publishEvent(id, event.TypeBookingRejected, event.BookingRejectedData{ID: id})

		c.JSON(http.StatusOK, gin.H{"id": id, "message": "予約を却下しました"})
	}
}

// handleStream は予約イベントのSSEフィードを配信するハンドラを返す。
// クライアントが切断するまでブローカーのイベントを送信し続ける。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		events, unsubscribe := s.broker.Subscribe()
		defer unsubscribe()

		// 接続確立を即時にフラッシュしてクライアントの待機を解く
		c.Writer.WriteString(": connected\n\n")
		c.Writer.Flush()

		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case e, ok := <-events:
				if !ok {
					return false
				}
				data, err := json.Marshal(e)
				if err != nil {
					log.Printf("[Booking] SSEイベントのシリアライズに失敗: %v", err)
					return true
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.EventType, data)
				return true
			}
		})
	}
}

// notifyDispatcher は予約作成をディスパッチャのWebhookへ通知する。
// 失敗はログに記録するのみで、予約の受付には影響しない。
func (s *Server) notifyDispatcher(data event.BookingCreatedData) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if err := s.dispatcher.PostJSON(ctx, "/webhooks/bookings", gin.H{"record": data}, nil); err != nil {
		log.Printf("[Booking] ディスパッチャWebhookの呼び出しに失敗: booking_id=%s error=%v", data.ID, err)
	}
}

// publishEvent は予約イベントを構築してSSEブローカーへ配信する。
func (s *Server) publishEvent(aggregateID string, eventType event.Type, data any) {
	e, err := event.New(aggregateID, event.AggregateTypeBooking, eventType, data)
	if err != nil {
		log.Printf("[Booking] イベントの構築に失敗: booking_id=%s error=%v", aggregateID, err)
		return
	}
	s.broker.Publish(e)
}

// writeAudit は予約テーブルへの操作を監査ログに記録する。
// 監査ログの書き込み失敗は操作自体を失敗させない。
func (s *Server) writeAudit(ctx context.Context, c *gin.Context, action, recordID string, oldData, newData any) {
	params := bookingdb.CreateAuditLogParams{
		ID:        uuid.New().String(),
		TableName: "bookings",
		RecordID:  recordID,
		Action:    action,
		UserEmail: nullString(middleware.GetEmail(c)),
		IpAddress: nullString(c.ClientIP()),
		UserAgent: nullString(c.Request.UserAgent()),
	}
	if oldData != nil {
		if b, err := json.Marshal(oldData); err == nil {
			params.OldData = nullString(string(b))
		}
	}
	if newData != nil {
		if b, err := json.Marshal(newData); err == nil {
			params.NewData = nullString(string(b))
		}
	}

	if err := s.queries.CreateAuditLog(ctx, params); err != nil {
		log.Printf("[Booking] 監査ログの記録に失敗: record_id=%s error=%v", recordID, err)
	}
}

// bookingJSON は予約行をレスポンス用のJSONオブジェクトに変換する。
func bookingJSON(b bookingdb.Booking) gin.H {
	return gin.H{
		"id":         b.ID,
		"name":       b.Name,
		"email":      b.Email,
		"phone":      b.Phone,
		"type":       b.Type,
		"date":       b.Date,
		"time":       b.Time,
		"message":    b.Message.String,
		"status":     b.Status,
		"created_at": b.CreatedAt,
		"updated_at": b.UpdatedAt,
	}
}

// nullString は空文字をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
