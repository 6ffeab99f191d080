package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"cryobank/contract"
)

// archiveRow mirrors Event in relational form for long-term retention.
type archiveRow struct {
	bun.BaseModel `bun:"table:audit_events"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Timestamp string    `bun:"timestamp,notnull"`
	Action    string    `bun:"action,notnull"`
	ActorType string    `bun:"actor_type"`
	Channel   string    `bun:"channel"`
	SessionID string    `bun:"session_id"`
	TraceID   string    `bun:"trace_id"`
	Status    string    `bun:"status,notnull"`
	Error     string    `bun:"error"`
	Payload   []byte    `bun:"payload,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Archive mirrors audit events into Postgres. It is an optional secondary
// sink: the JSONL log stays canonical, the archive serves reporting queries.
type Archive struct {
	db *bun.DB
}

func NewArchive(ctx context.Context, dsn string) (*Archive, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if _, err := db.NewCreateTable().Model((*archiveRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: create audit archive table: %v", contract.ErrPersistence, err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal audit event: %v", contract.ErrPersistence, err)
	}
	row := &archiveRow{
		Timestamp: ev.Timestamp,
		Action:    ev.Action,
		ActorType: ev.ActorType,
		Channel:   ev.Channel,
		SessionID: ev.SessionID,
		TraceID:   ev.TraceID,
		Status:    ev.Status,
		Error:     ev.Error,
		Payload:   payload,
	}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: archive audit event: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
