package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
)

// --- モック ---

type mockHistoryRepo struct {
	createFn          func(ctx context.Context, entry *model.HistoryEntry) error
	listFn            func(ctx context.Context, userID string, filter repository.HistoryFilter) ([]*model.HistoryEntry, int, error)
	findByIDFn        func(ctx context.Context, userID, id string) (*model.HistoryEntry, error)
	statsFn           func(ctx context.Context, userID string) (*model.HistoryStats, error)
	deleteFn          func(ctx context.Context, userID, id string) (bool, error)
	deleteAllFn       func(ctx context.Context, userID string) (int64, error)
	deleteOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *model.HistoryEntry) error {
	if m.createFn != nil {
		return m.createFn(ctx, entry)
	}
	return nil
}
func (m *mockHistoryRepo) List(ctx context.Context, userID string, filter repository.HistoryFilter) ([]*model.HistoryEntry, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, filter)
	}
	return nil, 0, nil
}
func (m *mockHistoryRepo) FindByID(ctx context.Context, userID, id string) (*model.HistoryEntry, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, userID, id)
	}
	return nil, nil
}
func (m *mockHistoryRepo) Stats(ctx context.Context, userID string) (*model.HistoryStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.HistoryStats{}, nil
}
func (m *mockHistoryRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return false, nil
}
func (m *mockHistoryRepo) DeleteAll(ctx context.Context, userID string) (int64, error) {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx, userID)
	}
	return 0, nil
}
func (m *mockHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

// --- テスト ---

// TestService_List_NormalizesPaging は不正なページ・件数がデフォルトに丸められることを検証する。
func TestService_List_NormalizesPaging(t *testing.T) {
	var gotFilter repository.HistoryFilter
	repo := &mockHistoryRepo{
		listFn: func(ctx context.Context, userID string, filter repository.HistoryFilter) ([]*model.HistoryEntry, int, error) {
			gotFilter = filter
			return []*model.HistoryEntry{}, 0, nil
		},
	}
	svc := NewService(repo, nil)

	tests := []struct {
		name      string
		in        repository.HistoryFilter
		wantPage  int
		wantLimit int
	}{
		{"zero values", repository.HistoryFilter{}, 1, 20},
		{"negative page", repository.HistoryFilter{Page: -1, Limit: 10}, 1, 10},
		{"limit above max", repository.HistoryFilter{Page: 2, Limit: 1000}, 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.List(context.Background(), "user-1", tt.in); err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if gotFilter.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", gotFilter.Page, tt.wantPage)
			}
			if gotFilter.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", gotFilter.Limit, tt.wantLimit)
			}
		})
	}
}

// TestService_Get_NotFound は存在しない履歴の取得がNOT_FOUNDになることを検証する。
func TestService_Get_NotFound(t *testing.T) {
	svc := NewService(&mockHistoryRepo{}, nil)

	_, err := svc.Get(context.Background(), "user-1", "nonexistent")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("Get error = %v, want NOT_FOUND", err)
	}
}

// TestService_Delete は削除と、存在しないIDのNOT_FOUNDを検証する。
func TestService_Delete(t *testing.T) {
	repo := &mockHistoryRepo{
		deleteFn: func(ctx context.Context, userID, id string) (bool, error) {
			return id == "entry-1", nil
		},
	}
	svc := NewService(repo, nil)

	if err := svc.Delete(context.Background(), "user-1", "entry-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	err := svc.Delete(context.Background(), "user-1", "entry-2")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("Delete error = %v, want NOT_FOUND", err)
	}
}

// TestService_DeleteAll_Idempotent は履歴が存在しない場合も成功することを検証する。
func TestService_DeleteAll_Idempotent(t *testing.T) {
	repo := &mockHistoryRepo{
		deleteAllFn: func(ctx context.Context, userID string) (int64, error) {
			return 0, nil
		},
	}
	svc := NewService(repo, nil)

	count, err := svc.DeleteAll(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if count != 0 {
		t.Errorf("deleted count = %d, want 0", count)
	}
}
