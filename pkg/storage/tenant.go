package storage

import "context"

// tenantKey is a private type for the tenant context key.
type tenantKey struct{}

// WithTenant scopes transcripts saved and read with ctx to tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant carried by ctx, or "" when the
// caller runs unscoped.
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether a transcript owned by owner may be read from
// ctx. Unscoped contexts see every tenant.
func Visible(ctx context.Context, owner string) bool {
	tenant := TenantFromContext(ctx)
	return tenant == "" || tenant == owner
}
