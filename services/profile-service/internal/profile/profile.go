// Package profile holds the Profile aggregate: the public-facing view of
// an account and its social counters.
package profile

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/waypoint-social/waypoint/libs/domain"
)

const AggregateType = "profile"

const (
	maxDisplayNameLen = 50
	maxBioLen         = 500
	maxLocationLabel  = 100
)

var handleRe = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Location is an optional user-declared place. Lat/Lon are WGS84 degrees.
type Location struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label"`
}

// Profile is keyed by the owning account's id: one profile per account,
// and events about both aggregates partition together on the broker.
type Profile struct {
	domain.AggregateMetadata

	AccountID   string    `json:"account_id"`
	Region      string    `json:"region"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Location    *Location `json:"location,omitempty"`
	PostCount   int64     `json:"post_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New(accountID, region, handle, displayName string) (*Profile, error) {
	if accountID == "" {
		return nil, domain.Validation("account_id", "must not be empty")
	}
	if !handleRe.MatchString(handle) {
		return nil, domain.Validation("handle", "must be 3 to 30 lowercase letters, digits or underscores")
	}
	if err := validateDisplayName(displayName); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Profile{
		AggregateMetadata: domain.NewAggregateMetadata(),
		AccountID:         accountID,
		Region:            region,
		Handle:            handle,
		DisplayName:       displayName,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	p.AddEvent(newEvent(p, EventCreated, CreatedPayload{
		AccountID:   p.AccountID,
		Region:      p.Region,
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
	}))
	return p, nil
}

func Restore(p Profile, version int64) (*Profile, error) {
	meta, err := domain.RestoreAggregateMetadata(version)
	if err != nil {
		return nil, err
	}
	p.AggregateMetadata = meta
	return &p, nil
}

func (p *Profile) AggregateID() string   { return p.AccountID }
func (p *Profile) AggregateType() string { return AggregateType }

func (p *Profile) UpdateDisplayName(displayName string) error {
	if p.DisplayName == displayName {
		return nil
	}
	if err := validateDisplayName(displayName); err != nil {
		return err
	}

	p.DisplayName = displayName
	p.apply()
	p.AddEvent(newEvent(p, EventDisplayNameChanged, DisplayNameChangedPayload{
		AccountID:      p.AccountID,
		Region:         p.Region,
		NewDisplayName: displayName,
	}))
	return nil
}

func (p *Profile) UpdateBio(bio string) error {
	if p.Bio == bio {
		return nil
	}
	if utf8.RuneCountInString(bio) > maxBioLen {
		return domain.Validation("bio", "must be at most 500 characters")
	}

	p.Bio = bio
	p.apply()
	// The bio text stays out of the event stream.
	p.AddEvent(newEvent(p, EventBioUpdated, BioUpdatedPayload{
		AccountID: p.AccountID,
		Region:    p.Region,
	}))
	return nil
}

func (p *Profile) UpdateLocation(loc Location) error {
	if p.Location != nil && *p.Location == loc {
		return nil
	}
	if loc.Lat < -90 || loc.Lat > 90 {
		return domain.Validation("location.lat", "must be between -90 and 90")
	}
	if loc.Lon < -180 || loc.Lon > 180 {
		return domain.Validation("location.lon", "must be between -180 and 180")
	}
	if utf8.RuneCountInString(loc.Label) > maxLocationLabel {
		return domain.Validation("location.label", "must be at most 100 characters")
	}

	p.Location = &loc
	p.apply()
	p.AddEvent(newEvent(p, EventLocationUpdated, LocationUpdatedPayload{
		AccountID: p.AccountID,
		Region:    p.Region,
		Label:     loc.Label,
	}))
	return nil
}

func (p *Profile) IncrementPostCount() {
	p.PostCount++
	p.apply()
	p.AddEvent(newEvent(p, EventPostCountIncr, PostCountPayload{
		AccountID: p.AccountID,
		Region:    p.Region,
		PostCount: p.PostCount,
	}))
}

// DecrementPostCount at zero is a no-op: the counter never goes negative
// and nothing is emitted.
func (p *Profile) DecrementPostCount() {
	if p.PostCount == 0 {
		return
	}
	p.PostCount--
	p.apply()
	p.AddEvent(newEvent(p, EventPostCountDecr, PostCountPayload{
		AccountID: p.AccountID,
		Region:    p.Region,
		PostCount: p.PostCount,
	}))
}

func (p *Profile) apply() {
	p.IncrementVersion()
	p.UpdatedAt = time.Now().UTC()
}

func validateDisplayName(displayName string) error {
	if strings.TrimSpace(displayName) == "" {
		return domain.Validation("display_name", "must not be blank")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return domain.Validation("display_name", "must be at most 50 characters")
	}
	return nil
}
