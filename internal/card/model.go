package card

import (
	"time"
)

// Card はスキャン済みカード1枚分のレコード
type Card struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	ScannedAt       time.Time  `gorm:"not null" json:"scanned_at"`
	CardName        string     `gorm:"type:text;not null" json:"card_name"`
	HP              *int       `json:"hp"`
	Types           StringList `gorm:"type:text" json:"pokemon_type"`
	EvolvesFrom     *string    `gorm:"type:text" json:"evolves_from"`
	Attacks         AttackList `gorm:"type:text" json:"attacks"`
	WeaknessType    *string    `gorm:"type:text" json:"-"`
	WeaknessValue   *string    `gorm:"type:text" json:"-"`
	ResistanceType  *string    `gorm:"type:text" json:"-"`
	ResistanceValue *string    `gorm:"type:text" json:"-"`
	RetreatCost     StringList `gorm:"type:text" json:"retreat_cost"`
	CardNumber      string     `gorm:"type:text" json:"card_number"`
	Rarity          string     `gorm:"type:text" json:"rarity"`
	Illustrator     string     `gorm:"type:text" json:"illustrator"`
	SetName         string     `gorm:"type:text" json:"set_name"`
	AdditionalInfo  string     `gorm:"type:text" json:"additional_info"`
	ImageFilename   string     `gorm:"type:text" json:"image_filename"`
	RawResponse     RawJSON    `gorm:"type:text" json:"-"`
}

// TableName はテーブル名を返す
func (Card) TableName() string {
	return "cards"
}

// BeforeCreate はスキャン日時が未設定なら現在時刻を入れる
func (c *Card) BeforeCreate() error {
	if c.ScannedAt.IsZero() {
		c.ScannedAt = time.Now().UTC()
	}
	return nil
}

// NewCard は読み取り結果からレコードを作る
func NewCard(f Fields, imageFilename string, raw []byte) *Card {
	return &Card{
		CardName:        f.CardName,
		HP:              f.HP,
		Types:           StringList(f.Types),
		EvolvesFrom:     f.EvolvesFrom,
		Attacks:         AttackList(f.Attacks),
		WeaknessType:    f.Weakness.Type,
		WeaknessValue:   f.Weakness.Value,
		ResistanceType:  f.Resistance.Type,
		ResistanceValue: f.Resistance.Value,
		RetreatCost:     StringList(f.RetreatCost),
		CardNumber:      f.CardNumber,
		Rarity:          f.Rarity,
		Illustrator:     f.Illustrator,
		SetName:         f.SetName,
		AdditionalInfo:  f.AdditionalInfo,
		ImageFilename:   imageFilename,
		RawResponse:     RawJSON(raw),
	}
}

// Fields はレコードを読み取り結果の形に戻す
func (c *Card) Fields() Fields {
	f := Fields{
		CardName:       c.CardName,
		HP:             c.HP,
		Types:          []string(c.Types),
		EvolvesFrom:    c.EvolvesFrom,
		Attacks:        []Attack(c.Attacks),
		Weakness:       Stat{Type: c.WeaknessType, Value: c.WeaknessValue},
		Resistance:     Stat{Type: c.ResistanceType, Value: c.ResistanceValue},
		RetreatCost:    []string(c.RetreatCost),
		CardNumber:     c.CardNumber,
		Rarity:         c.Rarity,
		Illustrator:    c.Illustrator,
		SetName:        c.SetName,
		AdditionalInfo: c.AdditionalInfo,
	}
	if f.Types == nil {
		f.Types = []string{}
	}
	if f.RetreatCost == nil {
		f.RetreatCost = []string{}
	}
	if f.Attacks == nil {
		f.Attacks = []Attack{}
	}
	return f
}

// View はAPI応答用の表現
type View struct {
	ID uint `json:"id"`
	Fields
	ImageFilename string    `json:"image_filename"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// View はAPI応答用の表現を返す
func (c *Card) View() View {
	return View{
		ID:            c.ID,
		Fields:        c.Fields(),
		ImageFilename: c.ImageFilename,
		ScannedAt:     c.ScannedAt,
	}
}
