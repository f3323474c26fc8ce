// Package auth はユーザー登録・ログイン・トークン更新などの認証ドメインロジックを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/reqbench/internal/model"
	"github.com/hitoshi/reqbench/internal/repository"
	"github.com/hitoshi/reqbench/internal/token"
)

// passwordMinLength はパスワードの最小文字数。
const passwordMinLength = 8

// TokenManager はトークンライフサイクル操作のインターフェース。
type TokenManager interface {
	Issue(userID, email string) (accessToken, refreshToken string, err error)
	IssueAccess(userID, email string) (string, error)
	VerifyRefresh(rawToken string) (*model.Identity, error)
	RevokeAccess(ctx context.Context, rawToken string)
}

// TokenPair は発行済みのアクセストークン・リフレッシュトークンのペア。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service は認証のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	tokenRepo    repository.RefreshTokenRepository
	tokenManager TokenManager
	logger       *slog.Logger
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.RefreshTokenRepository,
	tokenManager TokenManager,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:     userRepo,
		tokenRepo:    tokenRepo,
		tokenManager: tokenManager,
		logger:       logger,
		now:          time.Now,
	}
}

// Register は新規ユーザーを登録し、トークンペアを発行する。
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}
	if len(password) < passwordMinLength {
		return nil, nil, model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください。", passwordMinLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewDuplicateEmailError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)

	return user, pair, nil
}

// Login はメールアドレスとパスワードで認証し、トークンペアを発行する。
// メールアドレス不存在とパスワード不一致は同一のエラーになる。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("最終ログイン日時の更新に失敗しました: %w", err)
	}
	user.LastLogin = &now

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("ログインしました",
		slog.String("user_id", user.ID),
	)

	return user, pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンを発行する。
// 署名が有効でもユーザーの保持リストに存在しないトークンは拒否する。
// リフレッシュトークン自体は再発行せず、明示的な失効か自然期限切れまで有効のまま残る。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	identity, err := s.tokenManager.VerifyRefresh(refreshToken)
	if err != nil {
		return "", model.ErrInvalidRefreshToken
	}

	held, err := s.tokenRepo.Contains(ctx, identity.UserID, refreshToken)
	if err != nil {
		return "", fmt.Errorf("リフレッシュトークンの確認に失敗しました: %w", err)
	}
	if !held {
		return "", model.ErrInvalidRefreshToken
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return "", model.ErrInvalidRefreshToken
	}

	access, err := s.tokenManager.IssueAccess(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}
	return access, nil
}

// Logout は現在のアクセストークンを失効させ、リフレッシュトークンを保持リストから削除する。
// リフレッシュトークンが既に存在しない場合も成功として扱う（冪等）。
func (s *Service) Logout(ctx context.Context, userID, accessToken, refreshToken string) error {
	s.tokenManager.RevokeAccess(ctx, accessToken)

	if refreshToken != "" {
		if err := s.tokenRepo.Delete(ctx, userID, refreshToken); err != nil {
			return fmt.Errorf("リフレッシュトークンの削除に失敗しました: %w", err)
		}
	}

	s.logger.Info("ログアウトしました",
		slog.String("user_id", userID),
	)
	return nil
}

// LogoutAll は現在のアクセストークンを失効させ、ユーザーの全リフレッシュトークンを削除する。
// 他端末のアクセストークンは有効期限切れまで生存する。
func (s *Service) LogoutAll(ctx context.Context, userID, accessToken string) error {
	s.tokenManager.RevokeAccess(ctx, accessToken)

	if err := s.tokenRepo.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("リフレッシュトークンの削除に失敗しました: %w", err)
	}

	s.logger.Info("全端末からログアウトしました",
		slog.String("user_id", userID),
	)
	return nil
}

// ChangePassword は現在のパスワードを検証して新しいパスワードに変更する。
// 変更後は全リフレッシュトークンを無効化し、他端末での再ログインを強制する。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < passwordMinLength {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください。", passwordMinLength))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return model.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	if err := s.tokenRepo.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("リフレッシュトークンの削除に失敗しました: %w", err)
	}

	s.logger.Info("パスワードを変更しました",
		slog.String("user_id", userID),
	)
	return nil
}

// GetProfile は認証済みユーザーのプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は認証済みユーザーの表示名・アバターを更新する。
// nilのフィールドは変更しない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, avatar *string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if name != nil {
		user.Name = *name
	}
	if avatar != nil {
		user.Avatar = *avatar
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// issueAndStore はトークンペアを発行し、リフレッシュトークンを保持リストに登録する。
func (s *Service) issueAndStore(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, refresh, err := s.tokenManager.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}
	if err := s.tokenRepo.Add(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("リフレッシュトークンの保存に失敗しました: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスを入力してください。")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return nil
}

// compile-time interface check
var _ TokenManager = (*token.Manager)(nil)
