package model

import "time"

// Collection はHTTPリクエストをまとめるコレクションを表す。
type Collection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Color        string    `json:"color"`
	Icon         string    `json:"icon"`
	IsPublic     bool      `json:"isPublic"`
	RequestCount int       `json:"requestCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BodyType はリクエストボディの種別を表す。
type BodyType string

// リクエストボディ種別
const (
	BodyTypeNone       BodyType = "none"
	BodyTypeJSON       BodyType = "json"
	BodyTypeFormData   BodyType = "form-data"
	BodyTypeURLEncoded BodyType = "x-www-form-urlencoded"
	BodyTypeRaw        BodyType = "raw"
	BodyTypeBinary     BodyType = "binary"
)

// SavedRequest はコレクションに保存されたHTTPリクエスト定義を表す。
type SavedRequest struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	CollectionID string            `json:"collectionId"`
	Name         string            `json:"name"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	QueryParams  map[string]string `json:"queryParams"`
	Body         []byte            `json:"body,omitempty"`
	BodyType     BodyType          `json:"bodyType"`
	Description  string            `json:"description"`
	SortOrder    int               `json:"order"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Environment はリクエスト実行時に参照する変数セットを表す。
// ユーザーごとにアクティブな環境は最大1つ。
type Environment struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
	IsActive  bool              `json:"isActive"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
