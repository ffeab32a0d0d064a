package shared

import "context"

// Tenant identifies the pharmacy a request operates on. It is resolved by
// the upstream gateway and attached to the request context; core operations
// still take the pharmacy id as an explicit parameter.
type Tenant struct {
	PharmacyID int64
	Role       string
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok
}
