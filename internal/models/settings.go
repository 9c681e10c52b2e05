package models

import "time"

// Access modes for the log viewer.
const (
	AccessModeOnlyMe    = "only_me"
	AccessModeUserRoles = "user_roles"
)

// RetentionUnit is the unit of the retention quantity.
type RetentionUnit string

const (
	RetentionDays   RetentionUnit = "days"
	RetentionWeeks  RetentionUnit = "weeks"
	RetentionMonths RetentionUnit = "months"
	RetentionYears  RetentionUnit = "years"
)

// Retention is the log retention policy. KeepForever disables pruning.
type Retention struct {
	KeepForever bool          `json:"keep_forever"`
	Quantity    int           `json:"quantity,omitempty"`
	Unit        RetentionUnit `json:"unit,omitempty"`
}

// Duration converts the policy into a cutoff duration. Months and years use
// calendar approximations, which is fine for pruning.
func (r Retention) Duration() time.Duration {
	day := 24 * time.Hour
	switch r.Unit {
	case RetentionWeeks:
		return time.Duration(r.Quantity) * 7 * day
	case RetentionMonths:
		return time.Duration(r.Quantity) * 30 * day
	case RetentionYears:
		return time.Duration(r.Quantity) * 365 * day
	default:
		return time.Duration(r.Quantity) * day
	}
}

// Settings is the recognized options surface, stored as one JSON value in
// the options table.
type Settings struct {
	APIAccessKey          string    `json:"api_access_key"`
	DeleteDataOnUninstall bool      `json:"delete_data_on_uninstall"`
	TrackedRoles          []string  `json:"tracked_roles"`
	ViewerRoles           []string  `json:"viewer_roles"`
	Retention             Retention `json:"retention"`
	TrackBackgroundJobs   bool      `json:"track_background_jobs"`
	AccessMode            string    `json:"access_mode"`
	InstallerUserID       int       `json:"installer_user_id"`
	SiteURL               string    `json:"site_url"`
}

// DefaultSettings returns the options applied before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		TrackedRoles: []string{},
		ViewerRoles:  []string{"administrator"},
		Retention:    Retention{KeepForever: true},
		AccessMode:   AccessModeUserRoles,
	}
}

// Tracked reports whether events from actors with the given role should be
// recorded. An empty tracked list means every role is tracked.
func (s Settings) Tracked(role string) bool {
	if len(s.TrackedRoles) == 0 {
		return true
	}
	for _, r := range s.TrackedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanView reports whether the given account may open the log viewer.
func (s Settings) CanView(userID int, role string) bool {
	if s.AccessMode == AccessModeOnlyMe {
		return userID != 0 && userID == s.InstallerUserID
	}
	for _, r := range s.ViewerRoles {
		if r == role {
			return true
		}
	}
	return false
}
