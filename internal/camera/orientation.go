package camera

import "strings"

// InferFacing はデバイスのラベルから向きを推測する
//
// ラベルは向きを表す標準的な情報ではないため、あくまで経験則。
// ブラウザやメーカーによっては当たらない。
func InferFacing(label string) (Facing, bool) {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "front"), strings.Contains(l, "user"):
		return FacingFront, true
	case strings.Contains(l, "back"), strings.Contains(l, "environment"), strings.Contains(l, "rear"):
		return FacingBack, true
	}
	return "", false
}
