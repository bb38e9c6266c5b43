// Package account holds the Account aggregate: identity, lifecycle state
// and the mutations that emit platform events.
package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/waypoint-social/waypoint/libs/domain"
)

const AggregateType = "account"

type State string

const (
	StateActive      State = "active"
	StateSuspended   State = "suspended"
	StateDeactivated State = "deactivated"
)

var (
	usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)
	localeRe   = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
	regionRe   = regexp.MustCompile(`^[a-z]{2}(-[a-z0-9-]+)?$`)
)

// Account is the aggregate root for a user account. Every mutation guards
// against no-ops first: an unchanged value emits nothing and leaves the
// version untouched.
type Account struct {
	domain.AggregateMetadata

	ID            string
	Region        string
	Username      string
	Email         string
	EmailVerified bool
	State         State
	BirthDate     *time.Time
	Locale        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New creates an active account at version 1 and records the creation
// event.
func New(id, region, username, email string) (*Account, error) {
	if id == "" {
		return nil, domain.Validation("id", "must not be empty")
	}
	if err := validateRegion(region); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &Account{
		AggregateMetadata: domain.NewAggregateMetadata(),
		ID:                id,
		Region:            region,
		Username:          username,
		Email:             email,
		State:             StateActive,
		Locale:            "en",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a.AddEvent(newEvent(a, EventCreated, CreatedPayload{
		AccountID: a.ID,
		Region:    a.Region,
		Username:  a.Username,
		Email:     a.Email,
	}))
	return a, nil
}

// Restore rehydrates an account from storage. The stored version becomes
// the optimistic lock token; no events are re-emitted.
func Restore(a Account, version int64) (*Account, error) {
	meta, err := domain.RestoreAggregateMetadata(version)
	if err != nil {
		return nil, err
	}
	a.AggregateMetadata = meta
	return &a, nil
}

func (a *Account) AggregateID() string   { return a.ID }
func (a *Account) AggregateType() string { return AggregateType }

// IsBlocked reports whether the account is in a state that forbids
// profile mutations.
func (a *Account) IsBlocked() bool {
	return a.State == StateSuspended || a.State == StateDeactivated
}

func (a *Account) ChangeUsername(username string) error {
	if a.Username == username {
		return nil
	}
	if a.IsBlocked() {
		return domain.Forbidden("cannot change username of a restricted account")
	}
	if err := validateUsername(username); err != nil {
		return err
	}

	old := a.Username
	a.Username = username
	a.apply()
	a.AddEvent(newEvent(a, EventUsernameChanged, UsernameChangedPayload{
		AccountID:   a.ID,
		Region:      a.Region,
		OldUsername: old,
		NewUsername: username,
	}))
	return nil
}

// ChangeEmail resets email verification: the new address must be proven
// again.
func (a *Account) ChangeEmail(email string) error {
	if a.Email == email {
		return nil
	}
	if a.IsBlocked() {
		return domain.Forbidden("cannot change email of a restricted account")
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	old := a.Email
	a.Email = email
	a.EmailVerified = false
	a.apply()
	a.AddEvent(newEvent(a, EventEmailChanged, EmailChangedPayload{
		AccountID: a.ID,
		Region:    a.Region,
		OldEmail:  old,
		NewEmail:  email,
	}))
	return nil
}

func (a *Account) UpdateLocale(locale string) error {
	if a.Locale == locale {
		return nil
	}
	if !localeRe.MatchString(locale) {
		return domain.Validation("locale", "must be a BCP 47 tag like en or fr-FR")
	}

	a.Locale = locale
	a.apply()
	a.AddEvent(newEvent(a, EventLocaleChanged, LocaleChangedPayload{
		AccountID: a.ID,
		Region:    a.Region,
		NewLocale: locale,
	}))
	return nil
}

func (a *Account) ChangeRegion(region string) error {
	if a.Region == region {
		return nil
	}
	if err := validateRegion(region); err != nil {
		return err
	}

	old := a.Region
	a.Region = region
	a.apply()
	a.AddEvent(newEvent(a, EventRegionChanged, RegionChangedPayload{
		AccountID: a.ID,
		OldRegion: old,
		NewRegion: region,
	}))
	return nil
}

func (a *Account) ChangeBirthDate(date time.Time) error {
	date = date.UTC().Truncate(24 * time.Hour)
	if a.BirthDate != nil && a.BirthDate.Equal(date) {
		return nil
	}
	if a.IsBlocked() {
		return domain.Forbidden("cannot update a restricted account profile")
	}
	if date.After(time.Now().UTC()) {
		return domain.Validation("birth_date", "must not be in the future")
	}

	a.BirthDate = &date
	a.apply()
	// The date itself stays out of the event stream.
	a.AddEvent(newEvent(a, EventBirthDateChanged, BirthDateChangedPayload{
		AccountID: a.ID,
		Region:    a.Region,
	}))
	return nil
}

func (a *Account) Suspend(reason string) error {
	if a.State == StateSuspended {
		return nil
	}

	a.State = StateSuspended
	a.apply()
	a.AddEvent(newEvent(a, EventSuspended, SuspendedPayload{
		AccountID: a.ID,
		Region:    a.Region,
		Reason:    reason,
	}))
	return nil
}

// Reinstate lifts a suspension. Deactivated accounts cannot be reinstated
// this way.
func (a *Account) Reinstate() error {
	if a.State == StateActive {
		return nil
	}
	if a.State != StateSuspended {
		return domain.Forbidden("only suspended accounts can be reinstated")
	}

	a.State = StateActive
	a.apply()
	a.AddEvent(newEvent(a, EventReinstated, StatePayload{
		AccountID: a.ID,
		Region:    a.Region,
	}))
	return nil
}

func (a *Account) Deactivate() error {
	if a.State == StateDeactivated {
		return nil
	}

	a.State = StateDeactivated
	a.apply()
	a.AddEvent(newEvent(a, EventDeactivated, StatePayload{
		AccountID: a.ID,
		Region:    a.Region,
	}))
	return nil
}

func (a *Account) apply() {
	a.IncrementVersion()
	a.UpdatedAt = time.Now().UTC()
}

func validateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return domain.Validation("username", "must be 3 to 30 lowercase letters, digits or underscores")
	}
	return nil
}

func validateEmail(email string) error {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || len(email) > 254 {
		return domain.Validation("email", "must be a valid address")
	}
	return nil
}

func validateRegion(region string) error {
	if !regionRe.MatchString(region) {
		return domain.Validation("region", "must be a region code like eu or us-east-1")
	}
	return nil
}
