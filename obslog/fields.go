package obslog

import "context"

// Field represents a log field that can be applied to an entry.
type Field interface {
	Apply(entry *Entry)
}

type fieldFunc func(*Entry)

func (f fieldFunc) Apply(entry *Entry) { f(entry) }

func RequestID(id string) Field {
	return fieldFunc(func(e *Entry) { e.RequestID = id })
}

func UserID(id string) Field {
	return fieldFunc(func(e *Entry) { e.UserID = id })
}

func Fingerprint(fp string) Field {
	return fieldFunc(func(e *Entry) { e.Fingerprint = fp })
}

func ResultID(id string) Field {
	return fieldFunc(func(e *Entry) { e.ResultID = id })
}

func ScheduleID(id string) Field {
	return fieldFunc(func(e *Entry) { e.ScheduleID = id })
}

func Component(component string) Field {
	return fieldFunc(func(e *Entry) { e.Component = component })
}

func DurationMS(ms float64) Field {
	return fieldFunc(func(e *Entry) { e.DurationMS = ms })
}

func String(key, value string) Field {
	return fieldFunc(func(e *Entry) { e.set(key, value) })
}

func Int(key string, value int) Field {
	return fieldFunc(func(e *Entry) { e.set(key, value) })
}

func Bool(key string, value bool) Field {
	return fieldFunc(func(e *Entry) { e.set(key, value) })
}

func Any(key string, value interface{}) Field {
	return fieldFunc(func(e *Entry) { e.set(key, value) })
}

func (e *Entry) set(key string, value interface{}) {
	if e.Extra == nil {
		e.Extra = make(map[string]interface{})
	}
	e.Extra[key] = value
}

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	userIDKey       contextKey = "user_id"
	fingerprintKey  contextKey = "fingerprint"
)

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func ContextWithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, fingerprintKey, fp)
}

func FieldsFromContext(ctx context.Context) []Field {
	var fields []Field
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, RequestID(v))
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		fields = append(fields, UserID(v))
	}
	if v, ok := ctx.Value(fingerprintKey).(string); ok && v != "" {
		fields = append(fields, Fingerprint(v))
	}
	return fields
}
