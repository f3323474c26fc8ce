package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/reqbench/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した実行履歴リポジトリ。
// response・errorはJSONBカラムに格納する。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

const historyColumns = `id, user_id, request_id, method, url, headers, body, response, error, executed_at`

func scanHistoryEntry(scan func(dest ...any) error) (*model.HistoryEntry, error) {
	entry := &model.HistoryEntry{}
	var headers, body, response, execErr []byte
	err := scan(
		&entry.ID, &entry.UserID, &entry.RequestID, &entry.Method, &entry.URL,
		&headers, &body, &response, &execErr, &entry.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &entry.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	entry.Body = body
	if response != nil {
		entry.Response = &model.ExecutionResponse{}
		if err := json.Unmarshal(response, entry.Response); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	if execErr != nil {
		entry.Error = &model.ExecutionError{}
		if err := json.Unmarshal(execErr, entry.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}
	return entry, nil
}

// Create は履歴エントリを作成する。
func (r *PostgresHistoryRepo) Create(ctx context.Context, entry *model.HistoryEntry) error {
	headers, err := marshalStringMap(entry.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	var response, execErr []byte
	if entry.Response != nil {
		response, err = json.Marshal(entry.Response)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
	}
	if entry.Error != nil {
		execErr, err = json.Marshal(entry.Error)
		if err != nil {
			return fmt.Errorf("failed to marshal error: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO history (id, user_id, request_id, method, url, headers, body, response, error, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.RequestID, entry.Method, entry.URL,
		headers, nullableJSON(entry.Body), nullableJSON(response), nullableJSON(execErr),
		entry.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// List は履歴一覧を実行日時降順で返す。filterに一致する総件数も返す。
func (r *PostgresHistoryRepo) List(ctx context.Context, userID string, filter HistoryFilter) ([]*model.HistoryEntry, int, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if filter.Method != "" {
		args = append(args, filter.Method)
		where += fmt.Sprintf(` AND method = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(` AND url ILIKE $%d`, len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history entries: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)
	query := fmt.Sprintf(
		`SELECT `+historyColumns+` FROM history %s ORDER BY executed_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistoryEntry(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate history entries: %w", err)
	}
	return entries, total, nil
}

// FindByID は指定IDの履歴エントリを取得する。見つからない場合はnilを返す。
func (r *PostgresHistoryRepo) FindByID(ctx context.Context, userID, id string) (*model.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	entry, err := scanHistoryEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find history entry: %w", err)
	}
	return entry, nil
}

// Stats はユーザーの実行統計を返す。
// 平均応答時間はHTTPレスポンスが得られた実行のみを対象とする
// （トランスポート層エラーには応答時間が存在しない）。
func (r *PostgresHistoryRepo) Stats(ctx context.Context, userID string) (*model.HistoryStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT method,
		        COUNT(*),
		        COALESCE(AVG((response->>'time')::float), 0)
		 FROM history
		 WHERE user_id = $1
		 GROUP BY method
		 ORDER BY COUNT(*) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	defer rows.Close()

	stats := &model.HistoryStats{ByMethod: []model.HistoryMethodStat{}}
	for rows.Next() {
		var stat model.HistoryMethodStat
		if err := rows.Scan(&stat.Method, &stat.Count, &stat.AvgTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan history stat: %w", err)
		}
		stats.ByMethod = append(stats.ByMethod, stat)
		stats.TotalRequests += stat.Count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history stats: %w", err)
	}
	return stats, nil
}

// Delete は指定IDの履歴エントリを削除する。
func (r *PostgresHistoryRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM history WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete history entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteAll はユーザーの全履歴を削除し、削除件数を返す。
func (r *PostgresHistoryRepo) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM history WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history entries: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteOlderThan はcutoffより古い全ユーザーの履歴を削除し、削除件数を返す。
func (r *PostgresHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM history WHERE executed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired history entries: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
