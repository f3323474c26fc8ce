// Package request は保存済みリクエストのドメインロジックを提供する。
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// allowedMethods は保存を受け付けるHTTPメソッド。
var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// CreateInput は保存済みリクエスト作成の入力。
type CreateInput struct {
	CollectionID string
	Name         string
	Method       string
	URL          string
	Headers      map[string]string
	QueryParams  map[string]string
	Body         json.RawMessage
	BodyType     model.BodyType
	Description  string
	SortOrder    int
}

// UpdateInput は保存済みリクエスト更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	CollectionID *string
	Name         *string
	Method       *string
	URL          *string
	Headers      map[string]string
	QueryParams  map[string]string
	Body         json.RawMessage
	BodyType     *model.BodyType
	Description  *string
	SortOrder    *int
}

// Service は保存済みリクエストのサービス層。
type Service struct {
	repo           repository.RequestRepository
	collectionRepo repository.CollectionRepository
	now            func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.RequestRepository, collectionRepo repository.CollectionRepository) *Service {
	return &Service{
		repo:           repo,
		collectionRepo: collectionRepo,
		now:            time.Now,
	}
}

// Create は保存済みリクエストを作成する。
// 所属コレクションの所有確認を行い、他ユーザーのコレクションには保存できない。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.SavedRequest, error) {
	method, err := validateDefinition(input.Name, input.Method, input.URL)
	if err != nil {
		return nil, err
	}

	if err := s.ensureCollection(ctx, userID, input.CollectionID); err != nil {
		return nil, err
	}

	now := s.now()
	req := &model.SavedRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		CollectionID: input.CollectionID,
		Name:         input.Name,
		Method:       method,
		URL:          input.URL,
		Headers:      input.Headers,
		QueryParams:  input.QueryParams,
		Body:         input.Body,
		BodyType:     input.BodyType,
		Description:  input.Description,
		SortOrder:    input.SortOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.BodyType == "" {
		req.BodyType = model.BodyTypeNone
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.QueryParams == nil {
		req.QueryParams = map[string]string{}
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	return req, nil
}

// ListByCollection はコレクション内のリクエスト一覧を返す。
func (s *Service) ListByCollection(ctx context.Context, userID, collectionID string) ([]*model.SavedRequest, error) {
	if err := s.ensureCollection(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	requests, err := s.repo.ListByCollection(ctx, userID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("リクエスト一覧の取得に失敗しました: %w", err)
	}
	return requests, nil
}

// Get は指定IDのリクエストを取得する。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.SavedRequest, error) {
	req, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("リクエストの取得に失敗しました: %w", err)
	}
	if req == nil {
		return nil, model.NewNotFoundError("リクエスト")
	}
	return req, nil
}

// Update はリクエストを部分更新する。
// コレクション移動時は移動先の所有確認を行う。
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*model.SavedRequest, error) {
	req, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	prevCollectionID := req.CollectionID

	if input.CollectionID != nil && *input.CollectionID != req.CollectionID {
		if err := s.ensureCollection(ctx, userID, *input.CollectionID); err != nil {
			return nil, err
		}
		req.CollectionID = *input.CollectionID
	}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, model.NewValidationError("リクエスト名を入力してください。")
		}
		req.Name = *input.Name
	}
	if input.Method != nil {
		method := strings.ToUpper(strings.TrimSpace(*input.Method))
		if !allowedMethods[method] {
			return nil, model.NewValidationError(fmt.Sprintf("メソッド%sはサポートされていません。", method))
		}
		req.Method = method
	}
	if input.URL != nil {
		if *input.URL == "" {
			return nil, model.NewValidationError("URLを指定してください。")
		}
		req.URL = *input.URL
	}
	if input.Headers != nil {
		req.Headers = input.Headers
	}
	if input.QueryParams != nil {
		req.QueryParams = input.QueryParams
	}
	if input.Body != nil {
		req.Body = input.Body
	}
	if input.BodyType != nil {
		req.BodyType = *input.BodyType
	}
	if input.Description != nil {
		req.Description = *input.Description
	}
	if input.SortOrder != nil {
		req.SortOrder = *input.SortOrder
	}
	req.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, req, prevCollectionID); err != nil {
		return nil, fmt.Errorf("リクエストの更新に失敗しました: %w", err)
	}
	return req, nil
}

// Delete は指定IDのリクエストを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("リクエストの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("リクエスト")
	}
	return nil
}

// Duplicate はリクエストを同一コレクション内に複製する。
// 複製された名前には「 (Copy)」が付く。
func (s *Service) Duplicate(ctx context.Context, userID, id string) (*model.SavedRequest, error) {
	original, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	copied := *original
	copied.ID = uuid.NewString()
	copied.Name = original.Name + " (Copy)"
	copied.CreatedAt = now
	copied.UpdatedAt = now

	if err := s.repo.Create(ctx, &copied); err != nil {
		return nil, fmt.Errorf("リクエストの複製に失敗しました: %w", err)
	}
	return &copied, nil
}

// ensureCollection はコレクションの存在と所有を確認する。
func (s *Service) ensureCollection(ctx context.Context, userID, collectionID string) error {
	if collectionID == "" {
		return model.NewValidationError("コレクションIDを指定してください。")
	}
	collection, err := s.collectionRepo.FindByID(ctx, userID, collectionID)
	if err != nil {
		return fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if collection == nil {
		return model.NewNotFoundError("コレクション")
	}
	return nil
}

// validateDefinition はリクエスト定義の必須項目を検証し、正規化済みメソッドを返す。
func validateDefinition(name, method, rawURL string) (string, error) {
	if name == "" {
		return "", model.NewValidationError("リクエスト名を入力してください。")
	}
	if rawURL == "" {
		return "", model.NewValidationError("URLを指定してください。")
	}
	normalized := strings.ToUpper(strings.TrimSpace(method))
	if normalized == "" {
		normalized = http.MethodGet
	}
	if !allowedMethods[normalized] {
		return "", model.NewValidationError(fmt.Sprintf("メソッド%sはサポートされていません。", normalized))
	}
	return normalized, nil
}
