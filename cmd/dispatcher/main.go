// 通知ディスパッチャサービスのエントリポイント。
// プッシュ購読の管理と、予約作成Webhookからの全購読者へのプッシュ配信を行う。
package main

import (
	"log"

	"github.com/sejaconnect/connect/internal/dispatcher"
	"github.com/sejaconnect/connect/pkg/config"
)

func main() {
	config.LoadDotenv()
	cfg := config.NewDispatcher()

	if !cfg.VAPID.Valid() {
		log.Println("警告: VAPID鍵が未設定のため、プッシュ配信は失敗します（cmd/vapidkeysで生成できます）")
	}

	server, err := dispatcher.NewServer(cfg)
	if err != nil {
		log.Fatalf("ディスパッチャサーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知ディスパッチャを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知ディスパッチャの起動に失敗: %v", err)
	}
}
