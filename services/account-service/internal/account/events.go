package account

import "github.com/waypoint-social/waypoint/libs/domain"

const (
	EventCreated          = "account.created"
	EventUsernameChanged  = "account.username_changed"
	EventEmailChanged     = "account.email_changed"
	EventLocaleChanged    = "account.locale_changed"
	EventRegionChanged    = "account.region_changed"
	EventBirthDateChanged = "account.birth_date_changed"
	EventSuspended        = "account.suspended"
	EventReinstated       = "account.reinstated"
	EventDeactivated      = "account.deactivated"
)

// event pairs the shared envelope fields with a typed payload.
type event struct {
	domain.BaseEvent
	payload any
}

func (e event) GetPayload() any { return e.payload }

func newEvent(a *Account, eventType string, payload any) domain.Event {
	return event{
		BaseEvent: domain.NewBaseEvent(eventType, AggregateType, a.ID),
		payload:   payload,
	}
}

type CreatedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

type UsernameChangedPayload struct {
	AccountID   string `json:"account_id"`
	Region      string `json:"region"`
	OldUsername string `json:"old_username"`
	NewUsername string `json:"new_username"`
}

type EmailChangedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	OldEmail  string `json:"old_email"`
	NewEmail  string `json:"new_email"`
}

type LocaleChangedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	NewLocale string `json:"new_locale"`
}

type RegionChangedPayload struct {
	AccountID string `json:"account_id"`
	OldRegion string `json:"old_region"`
	NewRegion string `json:"new_region"`
}

type BirthDateChangedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
}

type SuspendedPayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	Reason    string `json:"reason"`
}

type StatePayload struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
}
