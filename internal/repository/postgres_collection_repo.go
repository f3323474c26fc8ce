package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/reqbench/internal/model"
)

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

const collectionColumns = `id, user_id, name, description, color, icon, is_public, request_count, created_at, updated_at`

func scanCollection(scan func(dest ...any) error) (*model.Collection, error) {
	c := &model.Collection{}
	err := scan(
		&c.ID, &c.UserID, &c.Name, &c.Description, &c.Color, &c.Icon,
		&c.IsPublic, &c.RequestCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create はコレクションを作成する。
func (r *PostgresCollectionRepo) Create(ctx context.Context, collection *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collections (id, user_id, name, description, color, icon, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		collection.ID, collection.UserID, collection.Name, collection.Description,
		collection.Color, collection.Icon, collection.IsPublic,
		collection.CreatedAt, collection.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	return nil
}

// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByID(ctx context.Context, userID, id string) (*model.Collection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	c, err := scanCollection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}
	return c, nil
}

// ListByUserID はユーザーのコレクション一覧を作成日時降順で返す。
func (r *PostgresCollectionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Collection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections
		 WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	collections := []*model.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return collections, nil
}

// Update はコレクションの属性を更新する。
func (r *PostgresCollectionRepo) Update(ctx context.Context, collection *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections
		 SET name = $1, description = $2, color = $3, icon = $4, is_public = $5, updated_at = $6
		 WHERE id = $7 AND user_id = $8`,
		collection.Name, collection.Description, collection.Color, collection.Icon,
		collection.IsPublic, collection.UpdatedAt, collection.ID, collection.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	return nil
}

// Delete は指定IDのコレクションを削除する。所属リクエストはCASCADE削除される。
func (r *PostgresCollectionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM collections WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete collection: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
