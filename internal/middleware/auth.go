package middleware

import (
	"net/http"

	"restaurant-be/internal/auth"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthMiddleware reads an HS256 access token from the cookie or bearer
// header. Requests without a token pass through anonymously; a present but
// invalid token is rejected.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.FromCtx(r.Context()).Warn("invalid access token", zap.Error(err))
				utils.WriteJSONError(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			uid, ok := claims["user_id"].(float64)
			if !ok || uid < 1 {
				utils.WriteJSONError(w, "invalid token claims", http.StatusUnauthorized)
				return
			}
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)

			ctx := utils.WithUser(r.Context(), utils.User{ID: uint(uid), Email: email, Role: role})
			ctx = logger.WithFields(ctx, zap.Uint("user_id", uint(uid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
			utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.IsAdmin(r.Context()) {
			utils.WriteJSONError(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
