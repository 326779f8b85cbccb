package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoActiveSession はライブストリームがない状態でキャプチャしようとした場合のエラー
var ErrNoActiveSession = errors.New("アクティブなカメラセッションがありません")

// ErrorKind は取得失敗の種類。メディアキャプチャの失敗名に対応する
type ErrorKind int

const (
	ErrKindUnknown         ErrorKind = iota // 分類不能
	ErrKindPermission                       // 権限がない
	ErrKindNotFound                         // デバイスがない
	ErrKindNotReadable                      // デバイスが使用中など読み取れない
	ErrKindOverConstrained                  // 制約を満たすデバイスがない
	ErrKindAbort                            // タイムアウトまたはキャンセル
)

// String は失敗名を返す
func (k ErrorKind) String() string {
	switch k {
	case ErrKindPermission:
		return "NotAllowedError"
	case ErrKindNotFound:
		return "NotFoundError"
	case ErrKindNotReadable:
		return "NotReadableError"
	case ErrKindOverConstrained:
		return "OverconstrainedError"
	case ErrKindAbort:
		return "AbortError"
	default:
		return "UnknownError"
	}
}

// AcquireError はストリーム取得の失敗を表す
type AcquireError struct {
	Kind        ErrorKind
	Constraints Constraints
	Err         error
}

func (e *AcquireError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "カメラの取得に失敗しました (%s)", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	switch e.Kind {
	case ErrKindPermission:
		b.WriteString("。カメラの権限と、HTTPSなどのセキュアなコンテキストで開いているかを確認してください")
	case ErrKindOverConstrained:
		if e.Constraints.Exact() {
			fmt.Fprintf(&b, "。デバイス %s は要求を満たせません", e.Constraints.DeviceID)
		} else {
			fmt.Fprintf(&b, "。向き %s のカメラが見つかりません", e.Constraints.Facing)
		}
	}
	return b.String()
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// IsOverConstrained はエラーが制約過多による失敗かを返す
func IsOverConstrained(err error) bool {
	var aerr *AcquireError
	return errors.As(err, &aerr) && aerr.Kind == ErrKindOverConstrained
}

// classifyAcquireError はバックエンドのエラーをAcquireErrorに正規化する
func classifyAcquireError(err error, c Constraints) *AcquireError {
	var aerr *AcquireError
	if errors.As(err, &aerr) {
		// バックエンドが同じ値を返し続けても前回の制約が残らないよう複製する
		cp := *aerr
		if cp.Constraints == (Constraints{}) {
			cp.Constraints = c
		}
		return &cp
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AcquireError{Kind: ErrKindAbort, Constraints: c, Err: err}
	}
	return &AcquireError{Kind: ErrKindUnknown, Constraints: c, Err: err}
}
