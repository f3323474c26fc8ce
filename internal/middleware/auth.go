// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/reqbench/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みアイデンティティを格納するためのキー。
var identityContextKey = contextKey("identity")

// accessTokenContextKey はリクエストコンテキストに提示されたアクセストークンを格納するためのキー。
// ログアウト時の失効登録に使用する。
var accessTokenContextKey = contextKey("access_token")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// token.Managerの部分集合として定義する。
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, rawToken string) (*model.Identity, error)
}

// AuthFailureRecorder は認証失敗メトリクスの記録インターフェース。
type AuthFailureRecorder interface {
	RecordAuthFailure()
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みアイデンティティと提示されたトークンをリクエストコンテキストに注入する。
// ヘッダー欠如・形式不正・検証失敗のいずれも同一の401レスポンスになる。
// recorderはnilでもよい。
func NewAuthMiddleware(verifier TokenVerifier, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func() {
				if recorder != nil {
					recorder.RecordAuthFailure()
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.ErrUnauthenticated)
			}

			// 1. AuthorizationヘッダーからBearerトークンを取得
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				reject()
				return
			}
			rawToken := strings.TrimPrefix(header, bearerPrefix)
			if rawToken == "" {
				reject()
				return
			}

			// 2. トークンの有効性を検証（署名・有効期限・失効）
			identity, err := verifier.VerifyAccess(r.Context(), rawToken)
			if err != nil {
				reject()
				return
			}

			// 3. 認証済みアイデンティティとトークンをコンテキストに注入
			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, accessTokenContextKey, rawToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから認証済みアイデンティティを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにアイデンティティを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// AccessTokenFromContext はリクエストコンテキストから提示されたアクセストークンを取得する。
func AccessTokenFromContext(ctx context.Context) string {
	rawToken, _ := ctx.Value(accessTokenContextKey).(string)
	return rawToken
}

// ContextWithAccessToken はコンテキストに提示されたアクセストークンを注入する。
// テストで使用する。
func ContextWithAccessToken(ctx context.Context, rawToken string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey, rawToken)
}
