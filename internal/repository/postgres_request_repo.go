package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/reqbench/internal/model"
)

// PostgresRequestRepo はPostgreSQLを使用した保存済みリクエストリポジトリ。
// headers・query_params・bodyはJSONBカラムに格納する。
type PostgresRequestRepo struct {
	db *sql.DB
}

// NewPostgresRequestRepo はPostgresRequestRepoを生成する。
func NewPostgresRequestRepo(db *sql.DB) *PostgresRequestRepo {
	return &PostgresRequestRepo{db: db}
}

const requestColumns = `id, user_id, collection_id, name, method, url, headers, query_params, body, body_type, description, sort_order, created_at, updated_at`

// marshalStringMap はmapをJSONBカラム格納用のバイト列に変換する。nilは空オブジェクトになる。
func marshalStringMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func scanSavedRequest(scan func(dest ...any) error) (*model.SavedRequest, error) {
	req := &model.SavedRequest{}
	var headers, queryParams []byte
	var body []byte
	err := scan(
		&req.ID, &req.UserID, &req.CollectionID, &req.Name, &req.Method, &req.URL,
		&headers, &queryParams, &body, &req.BodyType, &req.Description,
		&req.SortOrder, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &req.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(queryParams, &req.QueryParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal query params: %w", err)
	}
	req.Body = body
	return req, nil
}

// Create はリクエストを作成し、所属コレクションのrequest_countを同一トランザクションで加算する。
func (r *PostgresRequestRepo) Create(ctx context.Context, request *model.SavedRequest) error {
	headers, err := marshalStringMap(request.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	queryParams, err := marshalStringMap(request.QueryParams)
	if err != nil {
		return fmt.Errorf("failed to marshal query params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO requests (id, user_id, collection_id, name, method, url, headers, query_params, body, body_type, description, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		request.ID, request.UserID, request.CollectionID, request.Name, request.Method,
		request.URL, headers, queryParams, nullableJSON(request.Body), request.BodyType,
		request.Description, request.SortOrder, request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE collections SET request_count = request_count + 1 WHERE id = $1`,
		request.CollectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment request count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindByID(ctx context.Context, userID, id string) (*model.SavedRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	req, err := scanSavedRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	return req, nil
}

// ListByCollection はコレクション内のリクエスト一覧をsort_order昇順で返す。
func (r *PostgresRequestRepo) ListByCollection(ctx context.Context, userID, collectionID string) ([]*model.SavedRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests
		 WHERE collection_id = $1 AND user_id = $2
		 ORDER BY sort_order ASC, created_at DESC`,
		collectionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*model.SavedRequest{}
	for rows.Next() {
		req, err := scanSavedRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return requests, nil
}

// Update はリクエストを更新する。
// コレクション間を移動する場合、移動元・移動先のrequest_countを同一トランザクションで調整する。
func (r *PostgresRequestRepo) Update(ctx context.Context, request *model.SavedRequest, prevCollectionID string) error {
	headers, err := marshalStringMap(request.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	queryParams, err := marshalStringMap(request.QueryParams)
	if err != nil {
		return fmt.Errorf("failed to marshal query params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE requests
		 SET collection_id = $1, name = $2, method = $3, url = $4, headers = $5,
		     query_params = $6, body = $7, body_type = $8, description = $9,
		     sort_order = $10, updated_at = $11
		 WHERE id = $12 AND user_id = $13`,
		request.CollectionID, request.Name, request.Method, request.URL, headers,
		queryParams, nullableJSON(request.Body), request.BodyType, request.Description,
		request.SortOrder, request.UpdatedAt, request.ID, request.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}

	if prevCollectionID != request.CollectionID {
		_, err = tx.ExecContext(ctx,
			`UPDATE collections SET request_count = request_count - 1 WHERE id = $1`,
			prevCollectionID,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement request count: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE collections SET request_count = request_count + 1 WHERE id = $1`,
			request.CollectionID,
		)
		if err != nil {
			return fmt.Errorf("failed to increment request count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete は指定IDのリクエストを削除し、所属コレクションのrequest_countを減算する。
func (r *PostgresRequestRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var collectionID string
	err = tx.QueryRowContext(ctx,
		`DELETE FROM requests WHERE id = $1 AND user_id = $2 RETURNING collection_id`,
		id, userID,
	).Scan(&collectionID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete request: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE collections SET request_count = request_count - 1 WHERE id = $1`,
		collectionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement request count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// nullableJSON は空のバイト列をNULLとして扱う。
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// compile-time interface check
var _ RequestRepository = (*PostgresRequestRepo)(nil)
