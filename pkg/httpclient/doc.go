// Package httpclient はpostboardのHTTP APIを呼び出すJSONクライアントを提供する。
//
// コンテキストに設定したトークンをAuthorizationヘッダーで送信し、
// 2xx以外の応答はステータスコードとボディを持つ*StatusErrorとして返す。
package httpclient
