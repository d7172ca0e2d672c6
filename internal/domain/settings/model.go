package settings

import (
	"encoding/json"
	"time"
)

// Setting maps to the system_settings table. Value is arbitrary JSON.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SetInput is the body of a settings write.
type SetInput struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
