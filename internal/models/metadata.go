package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataVersion is written into every encoded metadata blob.
const MetadataVersion = 1

const (
	metaVersion             = "version"
	metaError               = "error"
	metaFailedAt            = "failed_at"
	metaProcessingStartedAt = "processing_started_at"
	metaTelegramDataURL     = "telegram_data_url"
	metaScriptURL           = "script_url"
	metaRetryCount          = "retry_count"
	metaRegenerationMode    = "regeneration_mode"
	metaRegeneratedAt       = "regenerated_at"
	metaAudioDuration       = "audio_duration"
	metaCompletedAt         = "completed_at"
)

// Metadata is the episode's free-form key/value blob. Known keys are exposed
// as typed fields; anything else is carried in Extra and written back as-is.
type Metadata struct {
	Error               string
	FailedAt            *time.Time
	ProcessingStartedAt *time.Time
	TelegramDataURL     string
	ScriptURL           string
	RetryCount          int
	RegenerationMode    string
	RegeneratedAt       *time.Time
	AudioDuration       int
	CompletedAt         *time.Time

	Extra map[string]json.RawMessage
}

// ClearFailure drops the error fields left behind by a previous failed attempt.
func (m *Metadata) ClearFailure() {
	m.Error = ""
	m.FailedAt = nil
}

// RecordFailure stores the failure reason and time.
func (m *Metadata) RecordFailure(reason string, at time.Time) {
	m.Error = reason
	t := at.UTC()
	m.FailedAt = &t
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	known := map[string]any{
		metaError:               &m.Error,
		metaFailedAt:            &m.FailedAt,
		metaProcessingStartedAt: &m.ProcessingStartedAt,
		metaTelegramDataURL:     &m.TelegramDataURL,
		metaScriptURL:           &m.ScriptURL,
		metaRetryCount:          &m.RetryCount,
		metaRegenerationMode:    &m.RegenerationMode,
		metaRegeneratedAt:       &m.RegeneratedAt,
		metaAudioDuration:       &m.AudioDuration,
		metaCompletedAt:         &m.CompletedAt,
	}

	for key, value := range raw {
		if key == metaVersion {
			continue
		}
		if target, ok := known[key]; ok {
			// A value of an unexpected shape stays untouched in Extra.
			if err := json.Unmarshal(value, target); err == nil {
				continue
			}
		}
		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}
		m.Extra[key] = value
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for key, value := range m.Extra {
		out[key] = value
	}

	setString := func(key, value string) {
		if value != "" {
			out[key] = value
		} else if _, ok := m.Extra[key]; !ok {
			delete(out, key)
		}
	}
	setTime := func(key string, value *time.Time) {
		if value != nil {
			out[key] = value.UTC().Format(time.RFC3339)
		} else if _, ok := m.Extra[key]; !ok {
			delete(out, key)
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			out[key] = value
		} else if _, ok := m.Extra[key]; !ok {
			delete(out, key)
		}
	}

	setString(metaError, m.Error)
	setTime(metaFailedAt, m.FailedAt)
	setTime(metaProcessingStartedAt, m.ProcessingStartedAt)
	setString(metaTelegramDataURL, m.TelegramDataURL)
	setString(metaScriptURL, m.ScriptURL)
	setInt(metaRetryCount, m.RetryCount)
	setString(metaRegenerationMode, m.RegenerationMode)
	setTime(metaRegeneratedAt, m.RegeneratedAt)
	setInt(metaAudioDuration, m.AudioDuration)
	setTime(metaCompletedAt, m.CompletedAt)
	out[metaVersion] = MetadataVersion

	return json.Marshal(out)
}

// Scan implements sql.Scanner for the JSON-encoded metadata column.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
