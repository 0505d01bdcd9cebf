package models

import "time"

// Audit log actions
const (
	ActionUserRegister = "user.register"
	ActionUserLogin    = "user.login"
	ActionAuthFailed   = "auth.failed"
	ActionCertIssue    = "cert.issue"
	ActionCertRevoke   = "cert.revoke"
	ActionEmailSend    = "email.send"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"`
}
