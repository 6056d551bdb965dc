package models

import (
	"encoding/json"
	"strconv"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// ChangeEvent is a table change notification: {table, eventType, old, new}.
type ChangeEvent struct {
	Table     string         `json:"table"`
	EventType string         `json:"eventType"`
	Old       map[string]any `json:"old"`
	New       map[string]any `json:"new"`
}

// Row returns New for inserts/updates and Old for deletes.
func (e ChangeEvent) Row() map[string]any {
	if e.EventType == EventDelete {
		return e.Old
	}
	return e.New
}

// Int64 reads a numeric column from the row; JSON numbers arrive as float64.
func Int64(row map[string]any, key string) (int64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}
