package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type loginActivityRecord struct {
	bun.BaseModel `bun:"table:login_activity_entries,alias:lae"`

	ID               string         `bun:"id,pk"`
	AttemptID        string         `bun:"attempt_id,notnull"`
	Slot             int            `bun:"slot,notnull"`
	Action           string         `bun:"action,notnull"`
	System           string         `bun:"system,notnull"`
	SubType          string         `bun:"sub_type,notnull"`
	Status           string         `bun:"status,notnull"`
	FederatedID      string         `bun:"federated_id,notnull"`
	PrimaryAccountID string         `bun:"primary_account_id,notnull"`
	Error            string         `bun:"error,notnull"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
