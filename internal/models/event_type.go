package models

import (
	"fmt"
	"strings"
)

// EventType identifies a platform event that webhooks can subscribe to.
type EventType string

const (
	QueryExecuted    EventType = "query.executed"
	QueryFailed      EventType = "query.failed"
	DashboardCreated EventType = "dashboard.created"
	DashboardUpdated EventType = "dashboard.updated"
	DashboardDeleted EventType = "dashboard.deleted"
	AlertTriggered   EventType = "alert.triggered"
	AlertResolved    EventType = "alert.resolved"
)

// EventCatalog is the fixed set of subscribable event types, in display order.
var EventCatalog = []EventType{
	QueryExecuted,
	QueryFailed,
	DashboardCreated,
	DashboardUpdated,
	DashboardDeleted,
	AlertTriggered,
	AlertResolved,
}

// ParseEventType parses a string into an EventType.
// Returns an error if the event type is not in the catalog.
func ParseEventType(name string) (EventType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, eventType := range EventCatalog {
		if string(eventType) == name {
			return eventType, nil
		}
	}

	return "", fmt.Errorf("unknown event type: %s", name)
}
