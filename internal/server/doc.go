// Package server は、HTTPサーバーとAPIを管理します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - 撮影ページ（HTML/JS）の配信
//   - カード画像のスキャン要求の受け付け
//   - 保存済みカードの参照
//   - サーバー側カメラの操作（有効な場合）
//
// 仕様:
//   - ルーティングはgin
//   - エラー応答は {"error": コード, "detail": 詳細}
//   - 取得失敗は503、アクティブなセッションなしでのキャプチャは409
package server
