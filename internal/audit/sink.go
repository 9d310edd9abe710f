// Package audit implements the best-effort audit sink invoked after a
// committed stock operation: a persisted audit row plus a live broadcast to
// connected clients. Neither may ever fail the business transaction that
// already committed.
package audit

import (
	"encoding/json"
	"log"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/ws"

	"gorm.io/gorm"
)

type Sink struct {
	db  *gorm.DB // nil in memory mode: broadcast only
	hub *ws.Hub
}

func NewSink(db *gorm.DB, hub *ws.Hub) *Sink {
	return &Sink{db: db, hub: hub}
}

// Record writes the audit entry and pushes a stock event to the hub.
// Failures are logged and swallowed.
func (s *Sink) Record(userID, action string, before, after any, entity string) {
	beforeJSON := marshalState(before)
	afterJSON := marshalState(after)

	if s.db != nil {
		entry := model.AuditLog{
			UserID:      userID,
			Action:      action,
			Entity:      entity,
			BeforeState: beforeJSON,
			AfterState:  afterJSON,
		}
		if err := s.db.Create(&entry).Error; err != nil {
			log.Printf("audit: failed to persist entry for %s: %v", action, err)
		}
	}

	if s.hub != nil {
		s.hub.Publish(map[string]any{
			"type":   "stock_update",
			"action": action,
			"user":   userID,
			"before": json.RawMessage(beforeJSON),
			"after":  json.RawMessage(afterJSON),
		})
	}
}

func marshalState(state any) string {
	if state == nil {
		return "null"
	}
	raw, err := json.Marshal(state)
	if err != nil {
		log.Printf("audit: failed to marshal state: %v", err)
		return "null"
	}
	return string(raw)
}
