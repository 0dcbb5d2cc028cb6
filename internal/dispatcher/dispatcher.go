package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sejaconnect/connect/internal/dispatcher/db"
	"github.com/sejaconnect/connect/pkg/config"
	"github.com/sejaconnect/connect/pkg/event"
)

// ErrVAPIDNotConfigured はVAPID鍵ペアが未設定であることを表す。
// この状態での配信要求は呼び出し全体の設定エラーとして扱う。
var ErrVAPIDNotConfigured = errors.New("VAPID鍵が設定されていません")

// SendError はプッシュ配信網が2xx以外のステータスコードを返したことを表す。
type SendError struct {
	// StatusCode はプッシュ配信網が返したHTTPステータスコード。
	StatusCode int
}

// Error はエラーメッセージを返す。
func (e *SendError) Error() string {
	return fmt.Sprintf("プッシュ配信網がエラーを返却: status=%d", e.StatusCode)
}

// Permanent はエンドポイントが恒久的に失効したことを示すかどうかを返す。
// 404/410は購読がブラウザ側で破棄されたことを意味し、再試行しても回復しない。
func (e *SendError) Permanent() bool {
	return e.StatusCode == 404 || e.StatusCode == 410
}

// Sender は1件の購読に対してプッシュメッセージを配信する。
type Sender interface {
	// Send は購読ペイロード（JSON文字列）宛にメッセージを送信する。
	// 配信網が2xx以外を返した場合は*SendErrorを返す。
	Send(ctx context.Context, subscription string, message []byte) error
}

// SubscriptionStore はディスパッチャが参照する購読ストアの操作。
// *db.Queriesが実装する。
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context) ([]db.PushSubscription, error)
	DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// Result は1回の配信呼び出しの集計結果。
type Result struct {
	// Sent は配信に成功した購読数。
	Sent int
	// Total は配信を試行した購読数。
	Total int
}

// NotificationPayload はプッシュメッセージのワイヤーフォーマット。
// 永続化されず、トリガーとなった予約から毎回構築される。
type NotificationPayload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Icon は通知アイコンの絶対URL。
	Icon string `json:"icon"`
	// Badge は通知バッジの絶対URL。
	Badge string `json:"badge"`
	// URL は通知クリック時に開くURL。
	URL string `json:"url"`
	// Data は通知に付随するメタデータ。
	Data NotificationData `json:"data"`
}

// NotificationData は通知に付随するメタデータ。
type NotificationData struct {
	// BookingID はトリガーとなった予約のID。
	BookingID string `json:"bookingId"`
	// Timestamp は配信時刻（RFC3339形式）。
	Timestamp string `json:"timestamp"`
}

// Dispatcher は予約作成イベントをプッシュ通知に変換して全購読者へ配信する。
// トランスポート（Webhook）から独立しており、単体でテストできる。
type Dispatcher struct {
	// store は購読ストア。
	store SubscriptionStore
	// sender はプッシュ配信網への送信処理。
	sender Sender
	// vapid は配信の署名資格情報。
	vapid config.VAPID
	// siteURL は通知内の絶対URLを構築するためのサイトベースURL。
	siteURL string
}

// NewDispatcher は新しいディスパッチャを生成する。
func NewDispatcher(store SubscriptionStore, sender Sender, cfg config.Dispatcher) *Dispatcher {
	return &Dispatcher{
		store:   store,
		sender:  sender,
		vapid:   cfg.VAPID,
		siteURL: cfg.SiteURL,
	}
}

// Dispatch は1件の予約作成イベントを全購読者へ配信する。
// 購読者ごとの失敗は互いに独立しており、全体の失敗にはならない。
// 戻り値のエラーは設定エラーまたはストア読み取りエラーのみ（呼び出し全体の失敗）。
func (d *Dispatcher) Dispatch(ctx context.Context, booking event.BookingCreatedData) (*Result, error) {
	subscriptions, err := d.store.ListPushSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗: %w", err)
	}

	// 購読者がいない場合は送信0件の成功として扱う
	if len(subscriptions) == 0 {
		return &Result{Sent: 0, Total: 0}, nil
	}

	if !d.vapid.Valid() {
		return nil, ErrVAPIDNotConfigured
	}

	message, err := json.Marshal(d.buildPayload(booking))
	if err != nil {
		return nil, fmt.Errorf("通知ペイロードのシリアライズに失敗: %w", err)
	}

	// 全購読者へ並行に配信し、個々の結果を収集する。
	// 1つのエンドポイントの失敗や遅延が他の配信を妨げてはならない。
	outcomes := make([]error, len(subscriptions))
	var wg sync.WaitGroup
	for i, sub := range subscriptions {
		wg.Add(1)
		go func(i int, sub db.PushSubscription) {
			defer wg.Done()
			outcomes[i] = d.sendOne(ctx, sub, message)
		}(i, sub)
	}
	wg.Wait()

	result := &Result{Total: len(subscriptions)}
	for _, outcome := range outcomes {
		if outcome == nil {
			result.Sent++
		}
	}
	return result, nil
}

// sendOne は1件の購読への配信を試行する。
// 恒久エラー（404/410）の場合は購読行を即座に削除する。
// 一時エラーはログに記録するのみで、購読は次回の配信に備えて保持する。
func (d *Dispatcher) sendOne(ctx context.Context, sub db.PushSubscription, message []byte) error {
	err := d.sender.Send(ctx, sub.Subscription, message)
	if err == nil {
		return nil
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) && sendErr.Permanent() {
		log.Printf("[Dispatcher] 失効した購読を削除します: endpoint=%s status=%d", sub.Endpoint, sendErr.StatusCode)
		if delErr := d.store.DeletePushSubscriptionByEndpoint(ctx, sub.Endpoint); delErr != nil {
			log.Printf("[Dispatcher] 購読の削除に失敗: endpoint=%s error=%v", sub.Endpoint, delErr)
		}
		return err
	}

	log.Printf("[Dispatcher] 配信に失敗（購読は保持）: endpoint=%s error=%v", sub.Endpoint, err)
	return err
}

// buildPayload は予約情報から通知ペイロードを構築する。
func (d *Dispatcher) buildPayload(booking event.BookingCreatedData) NotificationPayload {
	name := booking.Name
	if name == "" {
		name = "Cliente"
	}
	bookingTime := booking.Time
	if bookingTime == "" {
		bookingTime = "--:--"
	}

	return NotificationPayload{
		Title: "Novo Agendamento! 🔌",
		Body:  fmt.Sprintf("%s agendou para %s às %s", name, formatDateBR(booking.Date), bookingTime),
		Icon:  d.siteURL + "/notification-icon.png",
		Badge: d.siteURL + "/notification-icon.png",
		URL:   d.siteURL + "/admin",
		Data: NotificationData{
			BookingID: booking.ID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// formatDateBR はYYYY-MM-DD形式の日付をブラジルの表記（DD/MM/YYYY）に変換する。
// 日付が空の場合は "---" を返す。解析できない場合は元の文字列をそのまま返す。
func formatDateBR(date string) string {
	if date == "" {
		return "---"
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
