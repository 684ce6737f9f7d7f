package utils

import "context"

// User is the authenticated caller as read from the access token.
type User struct {
	ID    uint
	Email string
	Role  string
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// WithUser stores the caller in ctx. Called by the auth middleware.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok && u.ID > 0
}

func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	u, ok := UserFrom(ctx)
	return u.ID, ok
}

func IsAdmin(ctx context.Context) bool {
	u, ok := UserFrom(ctx)
	return ok && u.IsAdmin()
}
