package dashboard

import "strings"

// Household member roles as reported by the dashboard.
const (
	RoleAdult = "ADULT"
	RoleChild = "CHILD"
)

// HouseholdMember is one member of the Amazon household.
type HouseholdMember struct {
	DirectedID string `json:"directedId"`
	Role       string `json:"role"`
	FirstName  string `json:"firstName,omitempty"`
	AvatarURI  string `json:"avatarUri,omitempty"`
}

// IsChild reports whether the member is a child profile.
func (m HouseholdMember) IsChild() bool { return m.Role == RoleChild }

// DisplayName returns the member's first name, falling back to a
// directed-ID prefix for profiles without one.
func (m HouseholdMember) DisplayName() string {
	if m.FirstName != "" {
		return m.FirstName
	}
	if len(m.DirectedID) > 10 {
		return m.DirectedID[:10]
	}
	return m.DirectedID
}

// Device is a child's device registered in the dashboard.
type Device struct {
	DeviceID        string `json:"deviceId"`
	DeviceTypeID    string `json:"deviceTypeId"`
	DeviceName      string `json:"deviceName"`
	ChildDirectedID string `json:"childDirectedId"`
	MultiModal      bool   `json:"multiModal"`
}

// IsEcho reports whether the device is a screenless Echo.
func (d Device) IsEcho() bool { return !d.MultiModal }

// IsFireTablet reports whether the device has a screen.
func (d Device) IsFireTablet() bool { return d.MultiModal }

// CurfewConfig is one curfew window within a day.
type CurfewConfig struct {
	Start   string `json:"start"` // "HH:MM"
	End     string `json:"end"`   // "HH:MM"
	Enabled bool   `json:"enabled"`
	Type    string `json:"type,omitempty"`
}

// TimeLimits is the daily content time budget.
type TimeLimits struct {
	ContentTimeLimitsEnabled bool           `json:"contentTimeLimitsEnabled"`
	ContentTimeLimits        map[string]int `json:"contentTimeLimits"`
}

// TotalMinutes returns the overall daily limit in minutes.
func (t TimeLimits) TotalMinutes() int { return t.ContentTimeLimits["ALL"] }

// GoalsConfig holds per-category learning goals.
type GoalsConfig struct {
	ContentGoals      map[string]int `json:"contentGoals"`
	LearnFirstEnabled bool           `json:"learnFirstEnabled"`
}

// ReadingMinutes returns the daily reading goal in minutes.
func (g GoalsConfig) ReadingMinutes() int { return g.ContentGoals["category_BOOK"] }

// DaySchedule is one day's configuration in a child's weekly schedule.
type DaySchedule struct {
	Type             string         `json:"type"` // "DayOfWeek"
	Name             string         `json:"name"` // "Monday", ...
	Enabled          bool           `json:"enabled"`
	CurfewConfigList []CurfewConfig `json:"curfewConfigList"`
	TimeLimits       TimeLimits     `json:"timeLimits"`
	GoalsConfig      GoalsConfig    `json:"goalsConfig"`
	Time             int64          `json:"time,omitempty"`
}

// HasCurfew reports whether any curfew window is enabled.
func (d DaySchedule) HasCurfew() bool {
	for _, c := range d.CurfewConfigList {
		if c.Enabled {
			return true
		}
	}
	return false
}

// FirstCurfew returns the first enabled curfew window, if any.
func (d DaySchedule) FirstCurfew() (CurfewConfig, bool) {
	for _, c := range d.CurfewConfigList {
		if c.Enabled {
			return c, true
		}
	}
	return CurfewConfig{}, false
}

// ChildSchedule is a child's complete weekly schedule.
type ChildSchedule struct {
	ChildDirectedID      string        `json:"childDirectedId"`
	PeriodConfigurations []DaySchedule `json:"periodConfigurations"`
}

// DaySchedule returns the configuration for the named day
// (case-insensitive), if present.
func (s ChildSchedule) DaySchedule(name string) (DaySchedule, bool) {
	for _, d := range s.PeriodConfigurations {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return DaySchedule{}, false
}
