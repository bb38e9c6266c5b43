package profile

import "github.com/waypoint-social/waypoint/libs/domain"

const (
	EventCreated            = "profile.created"
	EventDisplayNameChanged = "profile.displayname.changed"
	EventBioUpdated         = "profile.bio.updated"
	EventLocationUpdated    = "profile.location.updated"
	EventPostCountIncr      = "profile.post_count.incremented"
	EventPostCountDecr      = "profile.post_count.decremented"
)

type event struct {
	domain.BaseEvent
	payload any
}

func (e event) GetPayload() any { return e.payload }

func newEvent(p *Profile, eventType string, payload any) domain.Event {
	return event{
		BaseEvent: domain.NewBaseEvent(eventType, AggregateType, p.AccountID),
		payload:   payload,
	}
}

type CreatedPayload struct {
	AccountID   string `json:"account_id"`
	Region      string `json:"region"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

type DisplayNameChangedPayload struct {
	AccountID      string `json:"account_id"`
	Region         string `json:"region"`
	NewDisplayName string `json:"new_display_name"`
}

type BioUpdatedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
}

type LocationUpdatedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	Label     string `json:"label"`
}

type PostCountPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	PostCount int64  `json:"post_count"`
}
