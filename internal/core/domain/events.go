package domain

import "time"

// ChangeEvent notifies subscribed dashboards that a table they render changed.
type ChangeEvent struct {
	Kind      string    `json:"kind"` // "booking" or "export"
	EntityID  string    `json:"entity_id"`
	MandantID string    `json:"mandant_id"`
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
}
