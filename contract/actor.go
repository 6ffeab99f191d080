package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActorContext identifies who triggered a mutation and over which surface.
// It travels with every write so audit events can attribute changes.
type ActorContext struct {
	ActorType string `json:"actor_type"` // human | agent | cli
	ActorID   string `json:"actor_id"`
	Channel   string `json:"channel"` // gui | agent | cli
	SessionID string `json:"session_id"`
	TraceID   string `json:"trace_id"`
}

func NewActorContext(actorType, channel, sessionID, traceID string) ActorContext {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = NewSessionID()
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = NewTraceID()
	}
	return ActorContext{
		ActorType: actorType,
		ActorID:   actorType,
		Channel:   channel,
		SessionID: sessionID,
		TraceID:   traceID,
	}
}

func NewSessionID() string {
	return fmt.Sprintf("session-%s-%s", time.Now().Format("20060102150405"), uuid.NewString()[:8])
}

func NewTraceID() string {
	return "trace-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
