// Package board はユーザーと投稿を扱うpostboardのHTTPサーバーを提供する。
//
// 主な機能:
//   - ユーザー登録（APIキーとトークンの発行）
//   - ユーザー名の変更、APIキーの再発行
//   - 投稿の作成と、作成者本人による本文の更新
//   - 公開範囲（PUBLIC / PRIVATE）に応じた投稿一覧の取得
//
// 認証はBearerトークンで行う。トークンが無い、または不正な場合は
// 未認証として扱い、認証が必須の操作だけが401を返す。
// 状態を変更する操作はすべてイベントとしてeventsテーブルに記録する。
package board
