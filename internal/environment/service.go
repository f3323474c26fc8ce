// Package environment はリクエスト実行時の変数セット（環境）のドメインロジックを提供する。
package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// Service は環境のサービス層。
type Service struct {
	repo repository.EnvironmentRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.EnvironmentRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create は環境を作成する。
func (s *Service) Create(ctx context.Context, userID, name string, variables map[string]string) (*model.Environment, error) {
	if name == "" {
		return nil, model.NewValidationError("環境名を入力してください。")
	}
	if variables == nil {
		variables = map[string]string{}
	}

	now := s.now()
	env := &model.Environment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Variables: variables,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, env); err != nil {
		return nil, fmt.Errorf("環境の作成に失敗しました: %w", err)
	}
	return env, nil
}

// List はユーザーの環境一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Environment, error) {
	environments, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("環境一覧の取得に失敗しました: %w", err)
	}
	return environments, nil
}

// Get は指定IDの環境を取得する。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Environment, error) {
	env, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("環境の取得に失敗しました: %w", err)
	}
	if env == nil {
		return nil, model.NewNotFoundError("環境")
	}
	return env, nil
}

// GetActive はユーザーのアクティブな環境を取得する。存在しない場合はnilを返す。
func (s *Service) GetActive(ctx context.Context, userID string) (*model.Environment, error) {
	env, err := s.repo.FindActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アクティブな環境の取得に失敗しました: %w", err)
	}
	return env, nil
}

// Update は環境の名前・変数を更新する。nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, userID, id string, name *string, variables map[string]string) (*model.Environment, error) {
	env, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		if *name == "" {
			return nil, model.NewValidationError("環境名を入力してください。")
		}
		env.Name = *name
	}
	if variables != nil {
		env.Variables = variables
	}
	env.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, env); err != nil {
		return nil, fmt.Errorf("環境の更新に失敗しました: %w", err)
	}
	return env, nil
}

// Activate は指定環境をアクティブにする。
// ユーザーのアクティブな環境は常に最大1つに保たれる。
func (s *Service) Activate(ctx context.Context, userID, id string) (*model.Environment, error) {
	activated, err := s.repo.Activate(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("環境のアクティブ化に失敗しました: %w", err)
	}
	if !activated {
		return nil, model.NewNotFoundError("環境")
	}
	return s.Get(ctx, userID, id)
}

// Delete は指定IDの環境を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("環境の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("環境")
	}
	return nil
}
