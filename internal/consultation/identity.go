package consultation

import (
	"fmt"

	"github.com/astroveda/consult/internal/models"
)

// Identity is the local participant, resolved once at the application
// boundary and passed into every component that needs it.
type Identity struct {
	ParticipantID models.ID
	DisplayName   string
	Role          models.Role
	Token         string
}

func (i Identity) IsAstrologer() bool {
	return i.Role == models.RoleAstrologer
}

// LandingRoute is where the participant goes after a call ends.
func (i Identity) LandingRoute() string {
	if i.IsAstrologer() {
		return RouteAstrologerDashboard
	}
	return RouteUserDashboard
}

func (i Identity) Validate() error {
	if i.ParticipantID.String() == "" {
		return fmt.Errorf("identity: participant id is required")
	}
	if i.Token == "" {
		return fmt.Errorf("identity: token is required")
	}
	switch i.Role {
	case models.RoleUser, models.RoleAstrologer, models.RoleAdmin:
	default:
		return fmt.Errorf("identity: unknown role %q", i.Role)
	}
	return nil
}
