package tenancy

import "context"

type ctxKey string

const (
	accountKey  ctxKey = "zapbot.account_id"
	instanceKey ctxKey = "zapbot.instance_name"
)

// WithAccountID stores the tenant account id in context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// AccountIDFromContext extracts the account id if present.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(accountKey)
	if val == nil {
		return "", false
	}
	accountID, ok := val.(string)
	return accountID, ok && accountID != ""
}

// WithInstanceName stores the WhatsApp instance name in context.
func WithInstanceName(ctx context.Context, instanceName string) context.Context {
	return context.WithValue(ctx, instanceKey, instanceName)
}

// InstanceNameFromContext extracts the instance name if present.
func InstanceNameFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(instanceKey)
	if val == nil {
		return "", false
	}
	name, ok := val.(string)
	return name, ok && name != ""
}
