package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds Sentry configuration options
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
	ServiceName      string
	ServerName       string
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "key",
	"authorization", "passphrase",
	"private", "mnemonic",
}

// InitSentry initializes Sentry. An empty DSN disables reporting and
// returns false.
func InitSentry(config *SentryConfig) (bool, error) {
	if config == nil || config.DSN == "" {
		return false, nil
	}

	environment := config.Environment
	if environment == "" {
		environment = "development"
	}
	release := config.Release
	if release == "" {
		release = "unknown"
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		if environment == "production" {
			sampleRate = 1.0
		} else {
			sampleRate = 0.25
		}
	}

	tracesSampleRate := config.TracesSampleRate
	if tracesSampleRate == 0 {
		if environment == "production" {
			tracesSampleRate = 0.1
		} else {
			tracesSampleRate = 0.05
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      environment,
		Release:          release,
		Debug:            config.Debug,
		SampleRate:       sampleRate,
		TracesSampleRate: tracesSampleRate,
		ServerName:       config.ServerName,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if config.ServiceName != "" {
				if event.Tags == nil {
					event.Tags = map[string]string{}
				}
				event.Tags["service"] = config.ServiceName
			}
			FilterSensitiveData(event)
			return event
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return true, nil
}

// FilterSensitiveData removes secrets from event extras and tags
func FilterSensitiveData(event *sentry.Event) {
	if event == nil {
		return
	}
	for k := range event.Extra {
		if IsSensitiveKey(k) {
			event.Extra[k] = "[FILTERED]"
		}
	}
	for k := range event.Tags {
		if IsSensitiveKey(k) {
			event.Tags[k] = "[FILTERED]"
		}
	}
}

// IsSensitiveKey reports whether a field name looks like it carries a secret
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// FlushSentry waits for buffered events to be sent
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError captures an error with tags and extra context
func CaptureError(err error, tags map[string]string, extra map[string]interface{}) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extra {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
