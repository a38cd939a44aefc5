package domain

import "time"

// Audit actions recorded by the auth flows.
const (
	ActionLogin          = "login"
	ActionLoginFailure   = "login_failure"
	ActionRegister       = "register"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionLogoutAll      = "logout_all"
	ActionChangePassword = "change_password"
)

// AuditLog is one persisted audit event. Rows are append-only.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
