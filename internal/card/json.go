package card

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList はJSON配列として保存する文字列のリスト
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// AttackList はJSON配列として保存するワザのリスト
type AttackList []Attack

func (l AttackList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Attack(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *AttackList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// RawJSON は監査用にそのまま保存するJSON
type RawJSON json.RawMessage

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = RawJSON(v)
	default:
		return fmt.Errorf("RawJSONに変換できない型: %T", src)
	}
	return nil
}

// MarshalJSON はJSONをそのまま埋め込む
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func scanJSON(src interface{}, dst interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSON列に変換できない型: %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
