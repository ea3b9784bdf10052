// Package event はユーザーと投稿の状態変更を表すイベントの型を提供する。
//
// イベントはeventsテーブルに追記のみで保存される監査ログであり、
// APIキーなどの秘密情報はデータに含めない。
package event
