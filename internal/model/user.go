// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはAPIレスポンスに含めない。
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Avatar       string     `json:"avatar,omitempty"`
	PasswordHash string     `json:"-"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// RefreshTokenRecord はユーザーが保持する有効なリフレッシュトークンを表す。
// ユーザーごとに最大5件をFIFOで保持する（6件目の登録で最古を追い出す）。
type RefreshTokenRecord struct {
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity は認証済みリクエストの主体を表す。
// アクセストークンの検証結果として得られる。
type Identity struct {
	UserID string
	Email  string
}
