package service

import "time"

// StatusPayload drives session.start / session.end tasks.
type StatusPayload struct {
	InstanceID int64 `json:"instance_id"`
}

// GeneratePayload drives template.generate tasks. WindowStart is the first
// day of the next batch window; the window end is computed at execution time
// from the configured horizon.
type GeneratePayload struct {
	TemplateID  int64     `json:"template_id"`
	WindowStart time.Time `json:"window_start"`
}

// DeactivatePayload drives template.deactivate tasks.
type DeactivatePayload struct {
	TemplateID int64 `json:"template_id"`
}
