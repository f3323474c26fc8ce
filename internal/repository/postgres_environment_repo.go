package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/reqbench/internal/model"
)

// PostgresEnvironmentRepo はPostgreSQLを使用した環境リポジトリ。
type PostgresEnvironmentRepo struct {
	db *sql.DB
}

// NewPostgresEnvironmentRepo はPostgresEnvironmentRepoを生成する。
func NewPostgresEnvironmentRepo(db *sql.DB) *PostgresEnvironmentRepo {
	return &PostgresEnvironmentRepo{db: db}
}

const environmentColumns = `id, user_id, name, variables, is_active, created_at, updated_at`

func scanEnvironment(scan func(dest ...any) error) (*model.Environment, error) {
	env := &model.Environment{}
	var variables []byte
	err := scan(
		&env.ID, &env.UserID, &env.Name, &variables,
		&env.IsActive, &env.CreatedAt, &env.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variables, &env.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}
	return env, nil
}

// Create は環境を作成する。
func (r *PostgresEnvironmentRepo) Create(ctx context.Context, env *model.Environment) error {
	variables, err := marshalStringMap(env.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO environments (id, user_id, name, variables, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		env.ID, env.UserID, env.Name, variables, env.IsActive,
		env.CreatedAt, env.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert environment: %w", err)
	}
	return nil
}

// FindByID は指定IDの環境を取得する。見つからない場合はnilを返す。
func (r *PostgresEnvironmentRepo) FindByID(ctx context.Context, userID, id string) (*model.Environment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+environmentColumns+` FROM environments WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	env, err := scanEnvironment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find environment: %w", err)
	}
	return env, nil
}

// FindActive はユーザーのアクティブな環境を取得する。見つからない場合はnilを返す。
func (r *PostgresEnvironmentRepo) FindActive(ctx context.Context, userID string) (*model.Environment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+environmentColumns+` FROM environments WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)
	env, err := scanEnvironment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active environment: %w", err)
	}
	return env, nil
}

// ListByUserID はユーザーの環境一覧を作成日時降順で返す。
func (r *PostgresEnvironmentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Environment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+environmentColumns+` FROM environments
		 WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	environments := []*model.Environment{}
	for rows.Next() {
		env, err := scanEnvironment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}
		environments = append(environments, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate environments: %w", err)
	}
	return environments, nil
}

// Update は環境の属性を更新する。
func (r *PostgresEnvironmentRepo) Update(ctx context.Context, env *model.Environment) error {
	variables, err := marshalStringMap(env.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE environments SET name = $1, variables = $2, updated_at = $3
		 WHERE id = $4 AND user_id = $5`,
		env.Name, variables, env.UpdatedAt, env.ID, env.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update environment: %w", err)
	}
	return nil
}

// Activate は指定環境をアクティブにする。
// 他の環境の非アクティブ化と同一トランザクションで行う。
func (r *PostgresEnvironmentRepo) Activate(ctx context.Context, userID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE environments SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate environments: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE environments SET is_active = TRUE, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to activate environment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 対象が存在しない場合は非アクティブ化も巻き戻す
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Delete は指定IDの環境を削除する。
func (r *PostgresEnvironmentRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM environments WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete environment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ EnvironmentRepository = (*PostgresEnvironmentRepo)(nil)
