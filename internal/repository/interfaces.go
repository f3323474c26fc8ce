// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/reqbench/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdateProfile はユーザーの表示名・アバターを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdatePassword はユーザーのパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RefreshTokenRepository はユーザーごとのリフレッシュトークン保持リストの永続化インターフェース。
// ユーザーごとに最大5件をFIFOで保持する。
type RefreshTokenRepository interface {
	// Add はトークンを保持リストに追加する。
	// 追加後に上限（5件）を超えた分は古い順に同一トランザクションで削除する。
	Add(ctx context.Context, userID, token string) error

	// Contains はトークンが保持リストに存在するかを返す。
	Contains(ctx context.Context, userID, token string) (bool, error)

	// Delete は指定トークンを保持リストから削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, userID, token string) error

	// DeleteAll はユーザーの全トークンを保持リストから削除する。
	DeleteAll(ctx context.Context, userID string) error
}

// CollectionRepository はコレクションデータの永続化インターフェース。
// 全操作はuserIDでスコープされ、他ユーザーのコレクションは存在しないものとして扱う。
type CollectionRepository interface {
	// Create はコレクションを作成する。
	Create(ctx context.Context, collection *model.Collection) error

	// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Collection, error)

	// ListByUserID はユーザーのコレクション一覧を作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Collection, error)

	// Update はコレクションの属性を更新する。
	Update(ctx context.Context, collection *model.Collection) error

	// Delete は指定IDのコレクションを削除する。
	// 所属リクエストはCASCADE削除される。削除した場合trueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// RequestRepository は保存済みリクエストデータの永続化インターフェース。
// コレクションのrequest_countはリクエストの作成・移動・削除と同一トランザクションで維持する。
type RequestRepository interface {
	// Create はリクエストを作成し、所属コレクションのrequest_countを加算する。
	Create(ctx context.Context, request *model.SavedRequest) error

	// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.SavedRequest, error)

	// ListByCollection はコレクション内のリクエスト一覧をsort_order昇順で返す。
	ListByCollection(ctx context.Context, userID, collectionID string) ([]*model.SavedRequest, error)

	// Update はリクエストを更新する。
	// コレクション間を移動する場合、移動元・移動先のrequest_countを同一トランザクションで調整する。
	Update(ctx context.Context, request *model.SavedRequest, prevCollectionID string) error

	// Delete は指定IDのリクエストを削除し、所属コレクションのrequest_countを減算する。
	// 削除した場合trueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// EnvironmentRepository は環境（変数セット）データの永続化インターフェース。
type EnvironmentRepository interface {
	// Create は環境を作成する。
	Create(ctx context.Context, env *model.Environment) error

	// FindByID は指定IDの環境を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Environment, error)

	// FindActive はユーザーのアクティブな環境を取得する。見つからない場合はnilを返す。
	FindActive(ctx context.Context, userID string) (*model.Environment, error)

	// ListByUserID はユーザーの環境一覧を作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Environment, error)

	// Update は環境の属性を更新する。
	Update(ctx context.Context, env *model.Environment) error

	// Activate は指定環境をアクティブにする。
	// ユーザーの他の環境の非アクティブ化と同一トランザクションで行い、
	// アクティブな環境が常に最大1つであることを保証する。
	// 対象が存在しない場合falseを返す。
	Activate(ctx context.Context, userID, id string) (bool, error)

	// Delete は指定IDの環境を削除する。削除した場合trueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// HistoryFilter は履歴一覧の絞り込み条件。
type HistoryFilter struct {
	// Method はHTTPメソッドの完全一致。空文字列は絞り込みなし。
	Method string
	// Search はURLの部分一致（大文字小文字を区別しない）。空文字列は絞り込みなし。
	Search string
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
}

// HistoryRepository は実行履歴の永続化インターフェース。
// 履歴は追記専用で、削除は保持期間超過分のワーカー削除とユーザー明示削除のみ。
type HistoryRepository interface {
	// Create は履歴エントリを作成する。
	Create(ctx context.Context, entry *model.HistoryEntry) error

	// List は履歴一覧を実行日時降順で返す。filterに一致する総件数も返す。
	List(ctx context.Context, userID string, filter HistoryFilter) ([]*model.HistoryEntry, int, error)

	// FindByID は指定IDの履歴エントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.HistoryEntry, error)

	// Stats はユーザーの実行統計（総件数・メソッド別件数・平均応答時間）を返す。
	Stats(ctx context.Context, userID string) (*model.HistoryStats, error)

	// Delete は指定IDの履歴エントリを削除する。削除した場合trueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// DeleteAll はユーザーの全履歴を削除し、削除件数を返す。
	DeleteAll(ctx context.Context, userID string) (int64, error)

	// DeleteOlderThan はcutoffより古い全ユーザーの履歴を削除し、削除件数を返す。
	// 保持期間超過分を削除するワーカーから呼ばれる。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
