// Package card スキャンしたカード情報のモデルと永続化を扱う
//
// # 仕様
//   - cardsテーブル1つ。タイプ・ワザ・にげるエネルギーはJSON文字列の列
//   - 抽出結果の生JSONは監査用にraw_responseへ保存する
//   - インデックス: card_name, set_name, types（postgresではGIN）
//   - ドライバ: sqlite3, postgres（jinzhu/gorm のダイアレクト）
package card
