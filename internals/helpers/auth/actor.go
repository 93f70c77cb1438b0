// file: internals/helpers/auth/actor.go
package helper

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/constants"
)

// Locals keys hydrated by the JWT middleware.
const (
	LocUserID   = "user_id"
	LocUserName = "user_name"
	LocUserRole = "userRole"
)

// Actor is the explicit caller context passed into every workflow call.
type Actor struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

func (a Actor) IsAdmin() bool { return constants.IsAdmin(a.Role) }

func (a Actor) IsStaff() bool { return constants.IsStaff(a.Role) }

// Label is what gets written into initiatedBy / reviewedBy fields.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.UserID
}

// ActorFromCtx reads the actor the auth middleware stored in locals.
func ActorFromCtx(c *fiber.Ctx) (Actor, error) {
	id, _ := c.Locals(LocUserID).(string)
	role, _ := c.Locals(LocUserRole).(string)
	name, _ := c.Locals(LocUserName).(string)
	if strings.TrimSpace(id) == "" || strings.TrimSpace(role) == "" {
		return Actor{}, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized - missing user context")
	}
	return Actor{UserID: id, Name: name, Role: role}, nil
}
