package domain

import "time"

// DailyFormStats aggregates submission and sync counts per form per day.
type DailyFormStats struct {
	FormName    string    `json:"form_name"`
	Day         time.Time `json:"day"`
	Submissions int       `json:"submissions"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	Synced      int       `json:"synced"`
}
