package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
// エラー種別はCodeで閉じた集合として定義し、
// HTTPステータスへの変換はハンドラー境界のマッピングテーブルで行う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, proxy, workbench, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeTransportFailure    = "TRANSPORT_FAILURE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// ErrUnauthenticated はアクセストークン検証失敗を表す共有インスタンス。
// 形式不正・署名不正・期限切れ・失効済みは呼び出し側から区別できない。
var ErrUnauthenticated = &APIError{
	Code:     ErrCodeUnauthenticated,
	Message:  "認証に失敗しました。",
	Category: "auth",
	Action:   "ログインし直してください。",
}

// ErrInvalidRefreshToken はリフレッシュトークン検証失敗を表す共有インスタンス。
// 署名不正・期限切れ・ユーザーの保持リストに存在しない場合のいずれも同一。
var ErrInvalidRefreshToken = &APIError{
	Code:     ErrCodeInvalidRefreshToken,
	Message:  "リフレッシュトークンが無効です。",
	Category: "auth",
	Action:   "ログインし直してください。",
}

// ErrInvalidCredentials はログイン認証情報の不一致を表す共有インスタンス。
// メールアドレス不存在とパスワード不一致は区別しない。
var ErrInvalidCredentials = &APIError{
	Code:     ErrCodeInvalidCredentials,
	Message:  "メールアドレスまたはパスワードが正しくありません。",
	Category: "auth",
	Action:   "入力内容を確認してください。",
}

// NewDuplicateEmailError は登録済みメールアドレスでの再登録エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNotFoundError は所有リソースが見つからない場合のエラーを生成する。
// 他ユーザーのリソースへのアクセスも存在しない場合と同じ扱いにする。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%sが見つかりません。", resource),
		Category: "workbench",
		Action:   "IDを確認してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "リクエスト内容を修正して再度お試しください。",
	}
}

// NewTransportFailureError はプロキシ実行のトランスポート層エラーを生成する。
// HTTPエラーステータスの受信はここに含まれない（それは正常な実行結果）。
func NewTransportFailureError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeTransportFailure,
		Message:  fmt.Sprintf("リクエストの実行に失敗しました: %s", message),
		Category: "proxy",
		Action:   "URLと接続先サーバーの状態を確認してください。",
	}
}
