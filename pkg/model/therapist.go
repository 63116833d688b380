package model

import "time"

// WorkingHoursRule is one recurring availability window in a therapist's
// week. Start and End are wall-clock times in the therapist's time zone.
type WorkingHoursRule struct {
	Weekday string `json:"weekday" bson:"weekday" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	Start   string `json:"start" bson:"start" validate:"required,valid_wallclock"`
	End     string `json:"end" bson:"end" validate:"required,valid_wallclock"`
}

// Therapist is owned by the directory service and read-only to the booking
// core. Slots are derived from WorkingHours at SessionDurationMin
// granularity; they are never stored.
type Therapist struct {
	ID                 string             `json:"id,omitempty" bson:"_id,omitempty"`
	Name               string             `json:"name" bson:"name"`
	ServiceTypes       []string           `json:"service_types" bson:"service_types"`
	WorkingHours       []WorkingHoursRule `json:"working_hours" bson:"working_hours"`
	SessionDurationMin int                `json:"session_duration_min" bson:"session_duration_min"`
	Accepting          bool               `json:"accepting" bson:"accepting"`
	TimeZone           string             `json:"time_zone,omitempty" bson:"time_zone"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
}

// RulesFor returns the working-hours rules matching the given weekday.
func (t *Therapist) RulesFor(weekday time.Weekday) []WorkingHoursRule {
	var rules []WorkingHoursRule
	name := weekday.String()
	for _, r := range t.WorkingHours {
		if r.Weekday == name {
			rules = append(rules, r)
		}
	}
	return rules
}

// Offers reports whether the therapist offers the given service type.
func (t *Therapist) Offers(serviceType string) bool {
	for _, s := range t.ServiceTypes {
		if s == serviceType {
			return true
		}
	}
	return false
}
