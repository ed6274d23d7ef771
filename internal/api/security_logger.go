package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// SecurityLogger writes audit and security events without exposing tokens or secrets.
type SecurityLogger struct {
	logger *log.Logger
}

// NewSecurityLogger creates a security logger writing to out, or stdout when out is nil.
func NewSecurityLogger(out io.Writer) *SecurityLogger {
	if out == nil {
		out = os.Stdout
	}
	return &SecurityLogger{
		logger: log.New(out, "[SECURITY] ", log.LstdFlags|log.LUTC),
	}
}

// LogSubmission records the outcome of a score submission. Only a prefix of the token's hash
// is logged.
func (sl *SecurityLogger) LogSubmission(requestID string, score int, date, token, outcome, remoteAddr string) {
	sl.logger.Printf(
		"score_submission request_id=%s score=%d date=%s token_hash=%s outcome=%s remote_addr=%s version=%s timestamp=%s",
		requestID,
		score,
		date,
		hashValue(token),
		outcome,
		remoteAddr,
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSecurityEvent logs security-related events (failed validations, forged tokens)
func (sl *SecurityLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	sl.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sl.sanitizeContext(context),
		remoteAddr,
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogAuditEvent logs audit events for compliance and debugging
func (sl *SecurityLogger) LogAuditEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	sl.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		sl.sanitizeContext(details),
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemStartup logs system startup information
func (sl *SecurityLogger) LogSystemStartup(addr string, config map[string]interface{}) {
	sl.logger.Printf(
		"system_startup addr=%s config=%+v version=%s git_commit=%s build_time=%s timestamp=%s",
		addr,
		sl.sanitizeContext(config),
		Version,
		GitCommit,
		BuildTime,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemShutdown logs system shutdown information
func (sl *SecurityLogger) LogSystemShutdown(reason string, uptime time.Duration) {
	sl.logger.Printf(
		"system_shutdown reason=%s uptime=%v version=%s timestamp=%s",
		reason,
		uptime,
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// sanitizeContext removes sensitive data from context maps
func (sl *SecurityLogger) sanitizeContext(context map[string]interface{}) map[string]interface{} {
	if context == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(context))
	for key, value := range context {
		switch key {
		case "token":
			if strVal, ok := value.(string); ok {
				sanitized["token_hash"] = hashValue(strVal)
			} else {
				sanitized["token_hash"] = fmt.Sprintf("non_string_value_%T", value)
			}
		case "secret", "password", "authorization", "dsn", "redis_url":
			sanitized[key] = "[REDACTED]"
		default:
			sanitized[key] = value
		}
	}
	return sanitized
}

// hashValue returns the first 16 hex chars of SHA-256(v).
func hashValue(v string) string {
	if v == "" {
		return "empty"
	}
	hash := sha256.Sum256([]byte(v))
	return hex.EncodeToString(hash[:])[:16]
}
