package domain

import (
	"github.com/google/uuid"
)

// Preferences are a user's matching filters for the live queue
type Preferences struct {
	GenderFilter string `json:"gender_filter"` // "male", "female", "any"
	MinAge       int    `json:"min_age"`
	MaxAge       int    `json:"max_age"`
	LookingFor   string `json:"looking_for"`
}

// AcceptsGender reports whether the filter admits the given gender
func (p Preferences) AcceptsGender(gender string) bool {
	return p.GenderFilter == "" || p.GenderFilter == "any" || p.GenderFilter == gender
}

// AcceptsAge reports whether age falls inside the preferred range
func (p Preferences) AcceptsAge(age int) bool {
	return age >= p.MinAge && age <= p.MaxAge
}

// Profile is the subset of user data the call service reads. Profile CRUD
// lives in the out-of-scope profile service; this service never writes it.
type Profile struct {
	UserID      uuid.UUID   `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Age         int         `json:"age"`
	Gender      string      `json:"gender"`
	Interests   []string    `json:"interests"`
	Preferences Preferences `json:"preferences"`
}

// PublicProfile is the partner-visible view handed out on a live match.
// Contact handles are deliberately absent until the match unlocks.
type PublicProfile struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Age         int       `json:"age"`
	Gender      string    `json:"gender"`
	Interests   []string  `json:"interests"`
}

// Public strips the profile down to its partner-visible fields
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Age:         p.Age,
		Gender:      p.Gender,
		Interests:   p.Interests,
	}
}

// ContactCard is a user's stored contact handles, revealed only on unlock
type ContactCard struct {
	UserID    uuid.UUID         `json:"user_id"`
	Handles   map[string]string `json:"handles"` // e.g. "phone", "instagram"
	UpdatedAt string            `json:"updated_at,omitempty"`
}
