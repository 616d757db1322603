// Package activitymap flattens account activity events into records for
// audit logs and downstream feeds.
package activitymap

import (
	"context"
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

const (
	// MetadataKeyTier carries the permission tier of the account
	MetadataKeyTier = "tier"
	// MetadataKeyIdentifier carries the login identifier, masked
	MetadataKeyIdentifier = "identifier"
)

const (
	defaultChannel    = "accounts"
	defaultObjectType = "user"
	anonymousActor    = "anonymous"
)

// Record is the flattened event
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Fields returns the record as alternating key/value pairs for structured
// loggers
func (r Record) Fields() []any {
	out := []any{
		"actor_id", r.ActorID,
		"verb", r.Verb,
		"object_id", r.ObjectID,
		"channel", r.Channel,
	}
	for k, v := range r.Metadata {
		out = append(out, k, v)
	}
	return out
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback names the actor of events without actor or user id,
// like a failed login for an unknown email
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock stamps events that carry no time
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize converts event into a Record. The event metadata is copied.
func Normalize(event accounts.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: anonymousActor,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.ActorID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// Sink records every event through fn after normalizing it
func Sink(fn func(Record), opts ...Option) accounts.ActivitySink {
	return accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
		fn(Normalize(event, opts...))
		return nil
	})
}

func metadata(event accounts.ActivityEvent) map[string]any {
	var out map[string]any
	set := func(k string, v any) {
		if out == nil {
			out = make(map[string]any, len(event.Metadata)+1)
		}
		out[k] = v
	}

	for k, v := range event.Metadata {
		if k == MetadataKeyIdentifier {
			if s, ok := v.(string); ok {
				v = MaskIdentifier(s)
			}
		}
		set(k, v)
	}

	if event.Tier != "" {
		if _, exists := out[MetadataKeyTier]; !exists {
			set(MetadataKeyTier, string(event.Tier))
		}
	}
	return out
}

// MaskIdentifier keeps the first character and the domain of an email
func MaskIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	at := strings.LastIndexByte(identifier, '@')
	if at <= 0 {
		if identifier == "" {
			return ""
		}
		return identifier[:1] + "***"
	}
	return identifier[:1] + "***" + identifier[at:]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
