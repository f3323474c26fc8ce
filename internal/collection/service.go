// Package collection はリクエストコレクションのドメインロジックを提供する。
package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// CreateInput はコレクション作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Color       string
	Icon        string
	IsPublic    bool
}

// UpdateInput はコレクション更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	IsPublic    *bool
}

// Service はコレクションのサービス層。
type Service struct {
	repo        repository.CollectionRepository
	requestRepo repository.RequestRepository
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CollectionRepository, requestRepo repository.RequestRepository) *Service {
	return &Service{
		repo:        repo,
		requestRepo: requestRepo,
		now:         time.Now,
	}
}

// Create はコレクションを作成する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Collection, error) {
	if input.Name == "" {
		return nil, model.NewValidationError("コレクション名を入力してください。")
	}

	now := s.now()
	collection := &model.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        input.Name,
		Description: input.Description,
		Color:       input.Color,
		Icon:        input.Icon,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if collection.Color == "" {
		collection.Color = "#3B82F6"
	}
	if collection.Icon == "" {
		collection.Icon = "folder"
	}

	if err := s.repo.Create(ctx, collection); err != nil {
		return nil, fmt.Errorf("コレクションの作成に失敗しました: %w", err)
	}
	return collection, nil
}

// List はユーザーのコレクション一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Collection, error) {
	collections, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の取得に失敗しました: %w", err)
	}
	return collections, nil
}

// Get は指定IDのコレクションを取得する。
// 他ユーザーのコレクションは存在しない場合と同じ扱いになる。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Collection, error) {
	collection, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if collection == nil {
		return nil, model.NewNotFoundError("コレクション")
	}
	return collection, nil
}

// Update はコレクションの属性を部分更新する。
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*model.Collection, error) {
	collection, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, model.NewValidationError("コレクション名を入力してください。")
		}
		collection.Name = *input.Name
	}
	if input.Description != nil {
		collection.Description = *input.Description
	}
	if input.Color != nil {
		collection.Color = *input.Color
	}
	if input.Icon != nil {
		collection.Icon = *input.Icon
	}
	if input.IsPublic != nil {
		collection.IsPublic = *input.IsPublic
	}
	collection.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, collection); err != nil {
		return nil, fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}
	return collection, nil
}

// Delete は指定IDのコレクションを削除する。所属リクエストも削除される。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("コレクション")
	}
	return nil
}

// Duplicate はコレクションを所属リクエストごと複製する。
// 複製された名前には「 (Copy)」が付く。
func (s *Service) Duplicate(ctx context.Context, userID, id string) (*model.Collection, error) {
	original, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	copied := &model.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        original.Name + " (Copy)",
		Description: original.Description,
		Color:       original.Color,
		Icon:        original.Icon,
		IsPublic:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, copied); err != nil {
		return nil, fmt.Errorf("コレクションの複製に失敗しました: %w", err)
	}

	requests, err := s.requestRepo.ListByCollection(ctx, userID, original.ID)
	if err != nil {
		return nil, fmt.Errorf("リクエスト一覧の取得に失敗しました: %w", err)
	}
	for _, req := range requests {
		dup := *req
		dup.ID = uuid.NewString()
		dup.CollectionID = copied.ID
		dup.CreatedAt = now
		dup.UpdatedAt = now
		if err := s.requestRepo.Create(ctx, &dup); err != nil {
			return nil, fmt.Errorf("リクエストの複製に失敗しました: %w", err)
		}
	}
	copied.RequestCount = len(requests)

	return copied, nil
}
