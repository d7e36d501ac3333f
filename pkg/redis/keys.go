package redis

import "strings"

const keyNamespace = "cartsync"

func idempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

func rateLimitKey(scope string) string {
	return joinKey("rate_limit", scope)
}

func accessSessionKey(accessID string) string {
	return joinKey("session", "access", accessID)
}

// joinKey prefixes the namespace and drops blank segments.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
