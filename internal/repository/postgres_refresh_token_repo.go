package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// refreshTokenLimit はユーザーごとのリフレッシュトークン保持上限。
// 上限到達時は最古のトークンから追い出す。
const refreshTokenLimit = 5

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Add はトークンを保持リストに追加する。
// 追加と上限超過分の追い出しを同一トランザクションで行い、
// 並行ログインでも保持数が上限を超えた状態が外部から観測されないようにする。
func (r *PostgresRefreshTokenRepo) Add(ctx context.Context, userID, token string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, created_at)
		 VALUES ($1, $2, now())`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}

	// 最新のrefreshTokenLimit件だけを残し、古い分を追い出す
	_, err = tx.ExecContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE user_id = $1 AND token NOT IN (
		     SELECT token FROM refresh_tokens
		     WHERE user_id = $1
		     ORDER BY created_at DESC
		     LIMIT $2
		 )`,
		userID, refreshTokenLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to evict old refresh tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Contains はトークンが保持リストに存在するかを返す。
func (r *PostgresRefreshTokenRepo) Contains(ctx context.Context, userID, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM refresh_tokens WHERE user_id = $1 AND token = $2
		 )`,
		userID, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token: %w", err)
	}
	return exists, nil
}

// Delete は指定トークンを保持リストから削除する。存在しなくてもエラーにしない。
func (r *PostgresRefreshTokenRepo) Delete(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND token = $2`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// DeleteAll はユーザーの全トークンを保持リストから削除する。
func (r *PostgresRefreshTokenRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
