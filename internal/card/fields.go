package card

import (
	"encoding/json"
	"fmt"
)

// Attack はワザ1つ分の情報
type Attack struct {
	Name        string   `json:"name"`
	Cost        []string `json:"cost"`
	Damage      *string  `json:"damage"`
	Description string   `json:"description"`
}

// Stat は弱点・抵抗力の種類と値
type Stat struct {
	Type  *string `json:"type"`
	Value *string `json:"value"`
}

// Fields はカード画像から読み取る項目
//
// JSONのキーは抽出プロンプトのスキーマと一致させている。
type Fields struct {
	CardName       string   `json:"card_name"`
	HP             *int     `json:"hp"`
	Types          []string `json:"pokemon_type"`
	EvolvesFrom    *string  `json:"evolves_from"`
	Attacks        []Attack `json:"attacks"`
	Weakness       Stat     `json:"weakness"`
	Resistance     Stat     `json:"resistance"`
	RetreatCost    []string `json:"retreat_cost"`
	CardNumber     string   `json:"card_number"`
	Rarity         string   `json:"rarity"`
	Illustrator    string   `json:"illustrator"`
	SetName        string   `json:"set_name"`
	AdditionalInfo string   `json:"additional_info"`
}

// DefaultFields は全項目がそろった既定値を返す
func DefaultFields() Fields {
	empty := ""
	return Fields{
		CardName: "Unknown",
		Types:    []string{},
		Attacks: []Attack{
			{Name: "Attack 1", Cost: []string{}, Damage: &empty},
		},
		RetreatCost: []string{},
	}
}

// Merge は抽出結果のJSONを上書きする
//
// JSONに含まれるキーだけが置き換わり、それ以外は現在の値が残る。
// 配列とオブジェクトは要素ごとではなく丸ごと置き換える。
func (f *Fields) Merge(raw []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("抽出結果の解析に失敗: %w", err)
	}

	// encoding/json は既存のスライスや構造体に上書きデコードするため、先に空にする
	if _, ok := keys["pokemon_type"]; ok {
		f.Types = nil
	}
	if _, ok := keys["attacks"]; ok {
		f.Attacks = nil
	}
	if _, ok := keys["weakness"]; ok {
		f.Weakness = Stat{}
	}
	if _, ok := keys["resistance"]; ok {
		f.Resistance = Stat{}
	}
	if _, ok := keys["retreat_cost"]; ok {
		f.RetreatCost = nil
	}

	if err := json.Unmarshal(raw, f); err != nil {
		return fmt.Errorf("抽出結果の解析に失敗: %w", err)
	}
	if f.CardName == "" {
		f.CardName = "Unknown"
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
	return nil
}
