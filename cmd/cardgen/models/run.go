package models

import (
	"time"
)

// RunStatus represents the status of a generation run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether a status is final. Once terminal, a run's
// status never changes again.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Run is the audit record for one card generation.
// Maps to: generation_runs table.
type Run struct {
	// Unique run ID, assigned by the trigger before the pipeline starts
	RunID string `db:"run_id" json:"run_id"`

	// Requested city (trigger-supplied or randomly picked)
	City string `db:"city" json:"city"`

	// Weather enrichment, populated after the fetch-weather step.
	// All nullable: a run can succeed with no weather data.
	ResolvedCityName *string  `db:"resolved_city_name" json:"resolved_city_name,omitempty"`
	WeatherCondition *string  `db:"weather_condition" json:"weather_condition,omitempty"`
	WeatherIcon      *string  `db:"weather_icon" json:"weather_icon,omitempty"`
	TempMin          *float64 `db:"temp_min" json:"temp_min,omitempty"`
	TempMax          *float64 `db:"temp_max" json:"temp_max,omitempty"`
	CurrentTemp      *float64 `db:"current_temp" json:"current_temp,omitempty"`

	// Date the card describes
	WeatherDate *time.Time `db:"weather_date" json:"weather_date,omitempty"`

	// Image generation model actually used; set only on success
	Model *string `db:"model" json:"model,omitempty"`

	// Object storage key of the generated card; set only on success
	ImageKey *string `db:"image_key" json:"image_key,omitempty"`

	Status RunStatus `db:"status" json:"status"`

	// Set only on failure; mutually exclusive with ImageKey
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	// Wall-clock time from run start to terminal state
	DurationMs *int64 `db:"duration_ms" json:"duration_ms,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WeatherUpdate carries the fields persisted by the update-weather step
type WeatherUpdate struct {
	ResolvedCityName string
	ConditionText    string
	ConditionIcon    string
	TempMin          float64
	TempMax          float64
	CurrentTemp      float64
}

// RunFilter narrows ledger queries
type RunFilter struct {
	Status RunStatus  // empty = all
	Date   *time.Time // match weather_date, nil = all
}

// RunPage is one page of ledger rows plus the total matching the filter
type RunPage struct {
	Runs  []*Run
	Total int
	Page  int
	Limit int
}
