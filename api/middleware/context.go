package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "staff_role"
	ctxActor  contextKey = "actor"
)

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// ActorFromContext is the audit identity written to created_by/deleted_by.
func ActorFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxActor)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithStaff seeds the context the way Auth does; used by tests and tooling.
func WithStaff(ctx context.Context, userID, role, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxActor, actor)
}
