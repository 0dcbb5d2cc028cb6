// プッシュ受信ワーカーのエントリポイント。
// 予約サービスのSSEフィードを購読し、予約作成イベントを通知として表示する
// 管理者側の常駐エージェント。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sejaconnect/connect/internal/receiver"
	"github.com/sejaconnect/connect/pkg/config"
	"github.com/sejaconnect/connect/pkg/event"
	"github.com/sejaconnect/connect/pkg/realtime"
)

func main() {
	config.LoadDotenv()
	cfg, err := config.NewReceiver()
	if err != nil {
		log.Fatalf("受信ワーカーの設定に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := receiver.NewApp(cfg, receiver.LogNotifier{}, receiver.LogClientRegistry{}, httpFetcher(cfg.SiteURL))
	if err := app.Start(ctx); err != nil {
		log.Fatalf("受信ワーカーの起動に失敗: %v", err)
	}

	listener := realtime.NewListener(cfg.BookingURL, cfg.AdminToken)
	listener.HandleBookingCreated(func(data event.BookingCreatedData) {
		body, err := json.Marshal(map[string]string{
			"title": "Novo Agendamento Connect!",
			"body":  fmt.Sprintf("%s agendou para %s às %s", data.Name, data.Date, data.Time),
			"url":   cfg.AdminURL,
		})
		if err != nil {
			log.Printf("通知メッセージの構築に失敗: %v", err)
			return
		}
		if err := app.Worker().Push(body); err != nil {
			log.Printf("プッシュイベントの投入に失敗: %v", err)
		}
	})
	listener.Start(ctx)

	log.Printf("受信ワーカーを起動しました: feed=%s", cfg.BookingURL)
	<-ctx.Done()

	listener.Stop()
	app.Worker().Suspend()
	log.Println("受信ワーカーを停止しました")
}

// httpFetcher は予約サービスからリソースを取得するFetcherを返す。
func httpFetcher(baseURL string) receiver.Fetcher {
	return func(ctx context.Context, path string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("リソースの取得に失敗: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("リソースの取得に失敗: path=%s status=%d", path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}
