package config

import (
	"os"
	"strings"
	"time"
)

// Queue backends selectable via QUEUE_BACKEND.
const (
	QueueBackendPubSub = "pubsub"
	QueueBackendNats   = "nats"
	QueueBackendDirect = "direct"
)

// ReviewCooldown is the minimum gap between two reviews from the same contact.
//
// Set via env:
// - REVIEW_COOLDOWN_HOURS (default 18)
func ReviewCooldown() time.Duration {
	return time.Duration(IntFromEnv("REVIEW_COOLDOWN_HOURS", 18)) * time.Hour
}

// NLUTimeout bounds every call to the language-understanding capability.
func NLUTimeout() time.Duration {
	return time.Duration(IntFromEnv("NLU_TIMEOUT_SECONDS", 10)) * time.Second
}

// NotificationTimeout bounds a single email/SMS dispatch.
func NotificationTimeout() time.Duration {
	return time.Duration(IntFromEnv("NOTIFY_TIMEOUT_SECONDS", 10)) * time.Second
}

func DefaultLanguage() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("NLU_DEFAULT_LANGUAGE")))
	if v == "" {
		return "en"
	}
	return v
}

// PhoneRegion is the region used to normalise local phone numbers into E.164.
func PhoneRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if v == "" {
		return "PK"
	}
	return v
}

// QueueBackend selects how tasks leave the outbox.
//
// Set via env:
// - QUEUE_BACKEND=pubsub|nats|direct (default pubsub when a project id is set, direct otherwise)
func QueueBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QUEUE_BACKEND")))
	switch v {
	case QueueBackendPubSub, QueueBackendNats, QueueBackendDirect:
		return v
	}
	if getPubSubProjectID() != "" {
		return QueueBackendPubSub
	}
	return QueueBackendDirect
}

// TaskProcessMaxAttempts is how many consumer failures a task survives before it goes DEAD.
func TaskProcessMaxAttempts() int {
	n := IntFromEnv("TASK_PROCESS_MAX_ATTEMPTS", 10)
	if n <= 0 {
		return 10
	}
	return n
}

func EnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
