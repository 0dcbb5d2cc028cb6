package dispatcher

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。db/dispatcher/schema.sql と同期すること。
const schema = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
    -- 購読の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- プッシュ配信先のエンドポイントURL。購読の同一性と配信先を兼ねる
    endpoint TEXT NOT NULL UNIQUE,
    -- ブラウザが生成した購読ペイロード（endpointと暗号鍵を含むJSON）
    subscription TEXT NOT NULL,
    -- 購読した管理者のユーザーID（任意）
    user_id TEXT,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
