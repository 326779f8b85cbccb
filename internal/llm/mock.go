package llm

import "context"

// mockResponse は固定の抽出結果
const mockResponse = `{
  "card_name": "Pikachu (Mock)",
  "hp": 60,
  "pokemon_type": ["Lightning"],
  "attacks": [
    {"name": "Quick Attack", "cost": ["L"], "damage": "10", "description": "Flip a coin. If heads, this attack does 10 more damage."},
    {"name": "Thunderbolt", "cost": ["L", "C", "C"], "damage": "50", "description": "Discard all Energy attached to Pikachu."}
  ],
  "weakness": {"type": "Fighting", "value": "x2"},
  "set_name": "Mock Set",
  "card_number": "25/100",
  "rarity": "Common"
}`

// Mock は常に同じ結果を返すExtractor
type Mock struct {
	// Response が空の場合は既定のモック結果を返す
	Response string
	// Err が設定されていればそれを返す
	Err error
}

// NewMock は新しいMockを作成する
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Extract(ctx context.Context, _ []byte, _ string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	resp := m.Response
	if resp == "" {
		resp = mockResponse
	}
	return parseExtraction(resp)
}
