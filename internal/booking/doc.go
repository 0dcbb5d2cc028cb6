// Package booking は顧客からの予約受付と管理者向けの予約管理を提供するサービス。
//
// 公開フォームからの予約をSQLiteに保存し、顧客集計と監査ログを更新した上で、
// 通知ディスパッチャへWebhookを送信する。管理者は予約の確定・完了・却下と、
// 予約イベントのSSEフィード購読ができる。通知層の障害は予約の受付に影響しない。
package booking
