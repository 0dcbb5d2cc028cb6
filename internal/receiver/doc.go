// Package receiver は管理者側でプッシュ通知を受信・表示する常駐ワーカーを提供する。
//
// ワーカーはインストール・アクティベーションを経てアクティブになり、単一の
// イベントループでプッシュと通知クリックを処理する。通知の表示とウィンドウの
// 制御はNotifier/ClientRegistryインターフェースの実装に委譲される。
package receiver
