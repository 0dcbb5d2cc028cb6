// Package dispatcher は予約作成イベントをWeb Pushで全購読者へ配信するサービスを提供する。
//
// 予約サービスからのWebhookを受けて購読ストアを読み出し、購読者ごとに独立・並行に
// プッシュメッセージを配信する。配信網が404/410を返した購読は失効として即座に
// 削除され、一時的な失敗は記録のみ行い購読を保持する。
package dispatcher
