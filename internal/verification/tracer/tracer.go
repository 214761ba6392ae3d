// Package tracer is a small tracing abstraction used by the verification
// engine. Production code uses the OpenTelemetry adapter, tests use the noop.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanVerifyProvider = "verification.provider"
	SpanVerifyLicense  = "verification.license"
	SpanCheckInsurance = "verification.insurance"
	SpanCheckBond      = "verification.bond"
	SpanVerifyAll      = "verification.batch"
	SpanRegistryLookup = "registry.lookup"
	SpanRegistrySearch = "registry.search"
)

// Attribute keys.
const (
	AttrProviderID     = "provider.id"
	AttrJurisdiction   = "registry.jurisdiction"
	AttrCredentialType = "credential.type"
	AttrResult         = "verification.result"
	AttrErrorCategory  = "registry.error_category"
	AttrCacheHit       = "cache.hit"
	AttrBatchSize      = "batch.size"
)

// Event names.
const (
	EventLogAppended = "verification.log_appended"
)
