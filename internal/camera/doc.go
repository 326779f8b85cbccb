// Package camera カメラストリームの取得と静止画キャプチャを担う
//
// # 責務
// - 映像入力デバイスの列挙
// - 向き（前面/背面）を指定したストリームの取得
// - 制約過多で失敗した場合の向きフォールバック（1回のみ）
// - デバイスの循環切り替え
// - ライブストリームからのJPEG静止画キャプチャ
//
// # 仕様
//   - Session: 状態（向き、デバイス一覧、アクティブなインデックス、ストリーム）を保持する
//   - ライブストリームは常に高々1本。新しい取得の前に既存トラックを必ず停止する
//   - Acquire / SwitchDevice / Capture / Close は単一スロットのキューで直列化する
//   - キャプチャ画像は反転しない（ミラー表示はプレビュー側の関心事）
//   - JPEG品質は90固定
//
// # バックエンド
//   - V4L2Devices: /dev/video* を列挙し、ffmpeg のMJPEGパイプでストリームを取得する
//   - MemoryDevices: 合成フレームを返すインメモリ実装（テスト・デモ用）
//
// # 前提要件（V4L2Devices）
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: ストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
