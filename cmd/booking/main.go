// 予約サービスのエントリポイント。
// 公開フォームからの予約受付、管理者向けの予約管理、予約イベントのSSEフィードを提供する。
package main

import (
	"log"

	"github.com/sejaconnect/connect/internal/booking"
	"github.com/sejaconnect/connect/pkg/config"
)

func main() {
	config.LoadDotenv()
	cfg := config.NewBooking()

	server, err := booking.NewServer(cfg)
	if err != nil {
		log.Fatalf("予約サーバーの初期化に失敗: %v", err)
	}

	log.Printf("予約サービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("予約サービスの起動に失敗: %v", err)
	}
}
