// Package history は実行履歴の記録・参照・削除のドメインロジックを提供する。
// 履歴は追記専用で、保持期間超過分は専用ワーカーが削除する。
package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// 一覧取得のページングデフォルト・上限
const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Service は実行履歴のサービス層。
type Service struct {
	repo   repository.HistoryRepository
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.HistoryRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Record は履歴エントリを記録する。
// プロキシ実行から実行結果の種別を問わず呼ばれる。
func (s *Service) Record(ctx context.Context, entry *model.HistoryEntry) error {
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("履歴の記録に失敗しました: %w", err)
	}
	return nil
}

// List は履歴一覧を実行日時降順で返す。2番目の戻り値はfilterに一致する総件数。
// ページ・件数の不正値はデフォルトに丸める。
func (s *Service) List(ctx context.Context, userID string, filter repository.HistoryFilter) ([]*model.HistoryEntry, int, error) {
	if filter.Page < 1 {
		filter.Page = defaultPage
	}
	if filter.Limit < 1 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	entries, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	return entries, total, nil
}

// Get は指定IDの履歴エントリを取得する。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.HistoryEntry, error) {
	entry, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewNotFoundError("履歴")
	}
	return entry, nil
}

// Stats はユーザーの実行統計を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*model.HistoryStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("履歴統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// Delete は指定IDの履歴エントリを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("履歴の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("履歴")
	}
	return nil
}

// DeleteAll はユーザーの全履歴を削除し、削除件数を返す。
// 履歴が存在しない場合も成功として扱う（冪等）。
func (s *Service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("履歴の削除に失敗しました: %w", err)
	}

	s.logger.Info("全履歴を削除しました",
		slog.String("user_id", userID),
		slog.Int64("deleted_count", count),
	)
	return count, nil
}
