package card

import (
	"errors"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// ErrNotFound は指定したカードが存在しない場合のエラー
var ErrNotFound = errors.New("カードが見つかりません")

// DefaultListLimit は一覧取得の既定件数
const DefaultListLimit = 50

// Repository はカードの永続化を担う
type Repository interface {
	Create(c *Card) error
	Find(id uint) (*Card, error)
	List(limit int) ([]Card, error)
}

type cardRepo struct {
	db *gorm.DB
}

// NewRepository はRepositoryを作成する
func NewRepository(db *gorm.DB) Repository {
	return &cardRepo{db: db}
}

// Open はデータベースに接続してマイグレーションを行う
//
// driverは "sqlite3" または "postgres"。
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバ: %s", driver)
	}

	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベースへの接続に失敗: %w", err)
	}
	db.LogMode(false)

	// sqliteは書き込みを1接続に限定する（:memory: も接続ごとに別DBになる）
	if driver == "sqlite3" {
		db.DB().SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate はcardsテーブルとインデックスを作成する
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Card{}).Error; err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	model := db.Model(&Card{})
	if err := model.AddIndex("idx_cards_card_name", "card_name").Error; err != nil {
		return fmt.Errorf("インデックスの作成に失敗: %w", err)
	}
	if err := model.AddIndex("idx_cards_set_name", "set_name").Error; err != nil {
		return fmt.Errorf("インデックスの作成に失敗: %w", err)
	}

	// タイプ一覧は要素の包含検索に使う
	if db.Dialect().GetName() == "postgres" {
		err := db.Exec("CREATE INDEX IF NOT EXISTS idx_cards_types ON cards USING GIN ((types::jsonb))").Error
		if err != nil {
			return fmt.Errorf("インデックスの作成に失敗: %w", err)
		}
		return nil
	}
	if err := model.AddIndex("idx_cards_types", "types").Error; err != nil {
		return fmt.Errorf("インデックスの作成に失敗: %w", err)
	}
	return nil
}

func (r *cardRepo) Create(c *Card) error {
	if c.CardName == "" {
		return errors.New("カード名は必須です")
	}
	if err := r.db.Create(c).Error; err != nil {
		return fmt.Errorf("カードの保存に失敗: %w", err)
	}
	return nil
}

func (r *cardRepo) Find(id uint) (*Card, error) {
	var c Card
	if err := r.db.First(&c, id).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("カードの取得に失敗: %w", err)
	}
	return &c, nil
}

// List は新しい順にカードを返す
func (r *cardRepo) List(limit int) ([]Card, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var cards []Card
	if err := r.db.Order("scanned_at desc, id desc").Limit(limit).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("カード一覧の取得に失敗: %w", err)
	}
	return cards, nil
}
