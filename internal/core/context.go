package core

import "context"

type contextKey string

const (
	ctxKeyTenant    contextKey = "tenant_id"
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "user_agent"
)

// ContextWithTenant stores the caller's tenant id.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, tenantID)
}

// TenantFromContext returns the tenant id set by ContextWithTenant, or "".
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTenant).(string); ok {
		return v
	}
	return ""
}

// ContextWithIPAddress adds the client IP for commit logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the User-Agent for commit logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
