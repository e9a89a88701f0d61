// Package provision creates and refreshes portal accounts from campus
// directory data.
package provision

import (
	"context"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// SynchronizationState is the outcome of loading one user.
type SynchronizationState string

const (
	StateCreated   SynchronizationState = "created"
	StateRefreshed SynchronizationState = "refreshed"
	StateError     SynchronizationState = "error"
)

// Attribute names understood by AuthorizableService.LoadUser.
const (
	AttrName         = ":name"
	AttrFirstName    = "firstName"
	AttrLastName     = "lastName"
	AttrEmail        = "email"
	AttrRole         = "role"
	AttrMajor        = "major"
	AttrCollege      = "college"
	AttrLocale       = "locale"
	AttrTimezone     = "timezone"
	AttrDemographics = "myb-demographics"
	// AttrPassword sets the account password directly. Only test users
	// should carry it.
	AttrPassword = "pwd"
)

// ProvisionResult pairs a user with the way it was synchronized. User is nil
// when the state is StateError.
type ProvisionResult struct {
	State SynchronizationState
	User  *repository.Authorizable
}

// UserProperties returns the user's public properties, or nil.
func (r ProvisionResult) UserProperties() map[string]any {
	if r.User == nil {
		return nil
	}
	return r.User.PublicProperties()
}

// PersonAttributeProvider looks up a person in an external directory. A nil
// map with a nil error means the person is unknown.
type PersonAttributeProvider interface {
	PersonAttributes(ctx context.Context, personID string) (map[string]any, error)
}
