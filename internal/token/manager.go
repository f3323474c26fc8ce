package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/reqbench/internal/model"
)

// revokedKeyPrefix は失効キャッシュのキープレフィックス。
const revokedKeyPrefix = "revoked:"

// Claims はアクセストークン・リフレッシュトークン共通のクレームセット。
// subにユーザーIDを格納する。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Config はManagerの設定。
// アクセス用とリフレッシュ用の署名鍵は独立していなければならない。
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessExpiry  time.Duration // デフォルト: 15分
	RefreshExpiry time.Duration // デフォルト: 7日

	// Now はテストで現在時刻を差し替えるためのフック。nilの場合はtime.Now。
	Now func() time.Time
}

// Manager はトークンライフサイクル（発行・検証・失効）を管理する。
// プロセス内に状態を持たないため、並行呼び出しに対してロック不要。
// 失効状態は注入されたRevocationCacheのみに保持される。
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	cache         RevocationCache
	logger        *slog.Logger
	now           func() time.Time
}

// NewManager はManagerを生成する。
// cacheはnilでもよい（失効チェックが無効化され、署名検証のみになる）。
func NewManager(cfg Config, cache RevocationCache, logger *slog.Logger) *Manager {
	m := &Manager{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		cache:         cache,
		logger:        logger,
		now:           cfg.Now,
	}
	if m.accessExpiry == 0 {
		m.accessExpiry = 15 * time.Minute
	}
	if m.refreshExpiry == 0 {
		m.refreshExpiry = 7 * 24 * time.Hour
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Issue はアクセストークンとリフレッシュトークンのペアを発行する。
// 署名以外の副作用はない。リフレッシュトークンのユーザーへの紐付け保存は呼び出し側の責務。
func (m *Manager) Issue(userID, email string) (accessToken, refreshToken string, err error) {
	accessToken, err = m.sign(userID, email, m.accessSecret, m.accessExpiry)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = m.sign(userID, email, m.refreshSecret, m.refreshExpiry)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// IssueAccess はアクセストークンのみを発行する。
// リフレッシュトークンによる更新時に使用し、リフレッシュトークン自体は再発行しない。
func (m *Manager) IssueAccess(userID, email string) (string, error) {
	return m.sign(userID, email, m.accessSecret, m.accessExpiry)
}

// VerifyAccess はアクセストークンを検証し、認証済みアイデンティティを返す。
// 形式不正・署名不正・期限切れ・失効済みのいずれもErrUnauthenticatedを返し、
// 呼び出し側からは区別できない。
// 失効チェックはキャッシュに revoked:<token> が存在するかで判定する。
// キャッシュへの到達失敗はログに記録して署名検証のみに縮退する
// （インフラ呼び出しにはフェイルオープン、エントリが存在する場合はフェイルクローズ）。
func (m *Manager) VerifyAccess(ctx context.Context, rawToken string) (*model.Identity, error) {
	claims, err := m.parse(rawToken, m.accessSecret)
	if err != nil {
		return nil, model.ErrUnauthenticated
	}

	if m.cache != nil {
		_, revoked, err := m.cache.Get(ctx, revokedKeyPrefix+rawToken)
		if err != nil {
			// キャッシュ停止で正当なトークンを拒否しない。認証の可用性はキャッシュに依存しない。
			m.logger.Warn("失効キャッシュへの問い合わせに失敗しました",
				slog.String("error", err.Error()),
			)
		} else if revoked {
			return nil, model.ErrUnauthenticated
		}
	}

	return &model.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// VerifyRefresh はリフレッシュトークンを検証し、アイデンティティを返す。
// 失敗はErrInvalidRefreshTokenとなり、アクセストークンの検証失敗と区別される。
// リフレッシュトークンはユーザーの保持リストからの削除で失効させるため、
// 失効キャッシュは参照しない。
func (m *Manager) VerifyRefresh(rawToken string) (*model.Identity, error) {
	claims, err := m.parse(rawToken, m.refreshSecret)
	if err != nil {
		return nil, model.ErrInvalidRefreshToken
	}
	return &model.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// RevokeAccess はアクセストークンを失効キャッシュに登録する。
// TTLはトークンの残り有効期間（アクセストークン最大有効期間で上限クランプ）とし、
// エントリが対象トークンより長生きしないようにする。
// キャッシュ書き込みの失敗はログに記録して握りつぶす（ベストエフォート失効）。
// 検証不能なトークンは何も認可できないため、そのまま無視する。
func (m *Manager) RevokeAccess(ctx context.Context, rawToken string) {
	claims, err := m.parse(rawToken, m.accessSecret)
	if err != nil {
		return
	}

	ttl := m.accessExpiry
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(m.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	if m.cache == nil {
		m.logger.Warn("失効キャッシュが未構成のため、アクセストークンを失効できません")
		return
	}
	if err := m.cache.SetWithTTL(ctx, revokedKeyPrefix+rawToken, "true", ttl); err != nil {
		m.logger.Error("アクセストークンの失効登録に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// sign は指定の鍵と有効期間でHS256署名済みトークンを生成する。
func (m *Manager) sign(userID, email string, secret []byte, expiry time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parse は署名・有効期限を検証してクレームを取り出す。
func (m *Manager) parse(rawToken string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
