package accounts

import (
	"context"
	"errors"
	"time"
)

type ActivityEventType string

const (
	ActivityEventLoginSuccess        ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure        ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed      ActivityEventType = "auth.token.refreshed"
	ActivityEventUserRegistered      ActivityEventType = "user.registered"
	ActivityEventUserActivated       ActivityEventType = "user.activated"
	ActivityEventPasswordRegenerated ActivityEventType = "user.password.regenerated"
)

// ActivityEvent is emitted after an account operation completes or a login
// is refused. ActorID differs from UserID when an admin registers someone.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    string
	UserID     string
	Tier       Tier
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Errors are logged and never fail
// the operation that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink and joins their errors
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var errs []error
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Record(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity stamps missing fields and hands the event to sink
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.ActorID == "" {
		event.ActorID = event.UserID
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink rejected %s: %v", event.EventType, err)
	}
}
