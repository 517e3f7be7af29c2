package context

import "context"

type ContextKey string

var (
	SourceKey    = ContextKey("X-Source")
	BatchIDKey   = ContextKey("X-Batch-Id")
	RequestIDKey = ContextKey("X-Request-Id")
)

// SetSource stores the name of the source being imported.
func SetSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

func GetSource(ctx context.Context) string {
	value, ok := ctx.Value(SourceKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	value, ok := ctx.Value(BatchIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// LogFields returns the values of ctx worth attaching to a log line.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if source := GetSource(ctx); source != "" {
		fields["source"] = source
	}
	if batchID := GetBatchID(ctx); batchID != "" {
		fields["batch_id"] = batchID
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
