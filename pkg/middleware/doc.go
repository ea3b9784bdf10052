// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの任意認証、アクセスログ、レート制限、ボディサイズ制限、
// パニックリカバリ、CORS設定を含む。
package middleware
