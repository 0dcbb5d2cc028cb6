// Package config は各サービスの設定を環境変数から一度だけ読み込む。
// サービス本体は環境変数に直接アクセスせず、起動時に構築された
// 設定構造体を受け取る。テストでは任意の値を直接組み立てられる。
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv はカレントディレクトリの.envファイルを読み込む。
// ファイルが存在しない場合はエラーにしない（本番環境では環境変数を直接設定する）。
func LoadDotenv() {
	_ = godotenv.Load()
}

// Booking は予約サービスの設定。
type Booking struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string
	// JWTSecret は管理者向けAPIのJWT署名鍵。
	JWTSecret string
	// DispatcherURL は通知ディスパッチャサービスのベースURL。
	DispatcherURL string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string
	// RedisAddr はレート制限に使用するRedisのアドレス。空文字の場合はレート制限を無効化する。
	RedisAddr string
}

// NewBooking は環境変数から予約サービスの設定を構築する。
func NewBooking() Booking {
	return Booking{
		Port:          getEnvOr("PORT", "8080"),
		DBPath:        getEnvOr("BOOKING_DB_PATH", "/data/booking.db"),
		JWTSecret:     getEnvOr("JWT_SECRET", "dev-secret-key"),
		DispatcherURL: getEnvOr("DISPATCHER_URL", "http://localhost:8081"),
		FrontendURL:   getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
}

// Dispatcher は通知ディスパッチャサービスの設定。
type Dispatcher struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string
	// JWTSecret は購読登録APIのJWT署名鍵。
	JWTSecret string
	// VAPID はプッシュ配信の署名資格情報。
	VAPID VAPID
	// SiteURL は通知内の絶対URLを構築するためのサイトベースURL。
	SiteURL string
}

// VAPID はプッシュ配信網への送信者認証に使う非対称鍵ペアと連絡先。
type VAPID struct {
	// PublicKey はVAPID公開鍵（Base64 URLエンコード）。
	PublicKey string
	// PrivateKey はVAPID秘密鍵（Base64 URLエンコード）。
	PrivateKey string
	// Subject は送信者の連絡先識別子（mailto:形式）。
	Subject string
}

// Valid は鍵ペアが設定されているかどうかを返す。
// 鍵が欠けている場合、ディスパッチャの呼び出しは設定エラーとして扱われる。
func (v VAPID) Valid() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// NewDispatcher は環境変数から通知ディスパッチャの設定を構築する。
func NewDispatcher() Dispatcher {
	return Dispatcher{
		Port:      getEnvOr("PORT", "8081"),
		DBPath:    getEnvOr("DISPATCHER_DB_PATH", "/data/dispatcher.db"),
		JWTSecret: getEnvOr("JWT_SECRET", "dev-secret-key"),
		VAPID: VAPID{
			PublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			PrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			Subject:    getEnvOr("VAPID_SUBJECT", "mailto:admin@sejaconnect.com.br"),
		},
		SiteURL: getEnvOr("SITE_URL", "https://sejaconnect.com.br"),
	}
}

// Receiver はプッシュ受信ワーカーの設定。
type Receiver struct {
	// BookingURL は予約サービスのベースURL（SSEフィードの接続先）。
	BookingURL string
	// SiteURL はプリキャッシュ対象のリソースを配信するサイトのベースURL。
	SiteURL string
	// AdminURL は通知クリック時に開く管理画面のURL。
	AdminURL string
	// AdminToken はSSEフィード購読に使う管理者JWT。
	AdminToken string
}

// NewReceiver は環境変数からプッシュ受信ワーカーの設定を構築する。
func NewReceiver() (Receiver, error) {
	token := os.Getenv("ADMIN_TOKEN")
	if token == "" {
		return Receiver{}, fmt.Errorf("環境変数ADMIN_TOKENが設定されていません")
	}
	return Receiver{
		BookingURL: getEnvOr("BOOKING_URL", "http://localhost:8080"),
		SiteURL:    getEnvOr("SITE_URL", "https://sejaconnect.com.br"),
		AdminURL:   getEnvOr("ADMIN_URL", "https://sejaconnect.com.br/admin"),
		AdminToken: token,
	}, nil
}

// getEnvOr は環境変数の値を返す。未設定の場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
