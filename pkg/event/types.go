package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeBooking は予約エンティティを表す。
	AggregateTypeBooking AggregateType = "Booking"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeBookingCreated は予約が新規作成されたことを表す。
	TypeBookingCreated Type = "BookingCreated"
	// TypeBookingConfirmed は予約が管理者により確定されたことを表す。
	TypeBookingConfirmed Type = "BookingConfirmed"
	// TypeBookingCompleted は予約が完了状態になったことを表す。
	TypeBookingCompleted Type = "BookingCompleted"
	// TypeBookingRejected は予約が却下され削除されたことを表す。
	TypeBookingRejected Type = "BookingRejected"
)

// Event は予約パイプラインを流れる不変のイベントレコードを表す。
// SSEフィードの配信単位であり、ディスパッチャへのWebhook通知の内部表現でもある。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// BookingCreatedData はBookingCreatedイベントのデータ。
// ディスパッチャはこの内容だけで通知ペイロードを構築し、
// 予約ストアへの再問い合わせは行わない。
type BookingCreatedData struct {
	// ID は予約の一意識別子。
	ID string `json:"id"`
	// Name は予約者の氏名。
	Name string `json:"name"`
	// Email は予約者のメールアドレス。
	Email string `json:"email"`
	// Phone は予約者の電話番号。
	Phone string `json:"phone"`
	// Type は予約種別（recording または meeting）。
	Type string `json:"type"`
	// Date は予約日（YYYY-MM-DD形式）。
	Date string `json:"date"`
	// Time は予約時刻（HH:MM形式）。
	Time string `json:"time"`
	// Message は予約者からの任意メッセージ。
	Message string `json:"message,omitempty"`
	// Status は予約の状態。作成直後は常に "pending"。
	Status string `json:"status"`
}

// BookingStatusChangedData はBookingConfirmed/BookingCompletedイベントのデータ。
type BookingStatusChangedData struct {
	// ID は予約の一意識別子。
	ID string `json:"id"`
	// Status は遷移後の状態。
	Status string `json:"status"`
}

// BookingRejectedData はBookingRejectedイベントのデータ。
type BookingRejectedData struct {
	// ID は削除された予約の一意識別子。
	ID string `json:"id"`
}
