// Package db はpostboardの永続化層を提供する。
//
// users/posts/eventsテーブルへのクエリをQueriesにまとめ、
// Store.InTxで1つのトランザクションとして実行できるようにする。
// SQLite（modernc.org/sqlite）とPostgreSQL（pgx）に対応し、
// スキーマはgooseの埋め込みマイグレーションで適用する。
package db
