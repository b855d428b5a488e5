// Package audit provides the append-only audit trail for ledger and record operations
package audit

import "context"

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys copied into audit entry meta when present
const (
	KeyRequestID  ContextKey = "requestId"  // Request identifier assigned by the API layer
	KeyRemoteAddr ContextKey = "remoteAddr" // Caller network address
	KeyRole       ContextKey = "role"       // Role of the authenticated caller
	KeyOperation  ContextKey = "operation"  // Operation being performed
)

// contextKeys lists the keys the trail looks for, in emission order
var contextKeys = []ContextKey{KeyRequestID, KeyRemoteAddr, KeyRole, KeyOperation}

// GetContextKey returns the ContextKey type for a given string
func GetContextKey(key string) ContextKey {
	return ContextKey(key)
}

// WithRequest adds the request identifier to the context
func WithRequest(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, KeyRequestID, requestID)
}

// WithRemoteAddr adds the caller address to the context
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, KeyRemoteAddr, addr)
}

// WithRole adds the caller role to the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, KeyRole, role)
}

// WithOperation adds operation information to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, KeyOperation, operation)
}

// contextValues extracts the known audit keys present on ctx
func contextValues(ctx context.Context) map[string]string {
	values := make(map[string]string)
	for _, key := range contextKeys {
		if val, ok := ctx.Value(key).(string); ok && val != "" {
			values[string(key)] = val
		}
	}
	return values
}
