package user

import (
	"context"
	"errors"
)

type contextKey string

const userKey contextKey = "user"

var ErrNoUser = errors.New("no user in context")

// WithUser stores the resolved user in the request context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// Current retrieves the user stored by the platform middleware. Returns
// ErrNoUser when the request carried no resolvable identity.
func Current(ctx context.Context) (User, error) {
	u, ok := ctx.Value(userKey).(User)
	if !ok {
		return User{}, ErrNoUser
	}
	return u, nil
}
