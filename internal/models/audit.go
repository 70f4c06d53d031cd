package models

import "time"

// AuditAction constants represent record writes that are logged.
const (
	AuditActionCreate     = "CREATE"
	AuditActionDelete     = "DELETE"
	AuditActionUpdate     = "UPDATE"
	AuditActionCompensate = "COMPENSATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Actor      *string   `db:"actor" json:"actor,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
