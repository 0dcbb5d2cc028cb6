// VAPID鍵ペアの生成ツール。
// プッシュ配信の送信者認証に使う鍵ペアを生成し、環境変数として
// 設定できる形式で出力する。鍵は一度生成したら使い回すこと。
package main

import (
	"fmt"
	"log"

	webpush "github.com/SherClockHolmes/webpush-go"
)

func main() {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalf("VAPID鍵ペアの生成に失敗: %v", err)
	}

	fmt.Println("# 以下を.envまたはデプロイ環境の環境変数に設定してください")
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
	fmt.Println("VAPID_SUBJECT=mailto:admin@sejaconnect.com.br")
}
