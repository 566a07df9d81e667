package facade

import (
	"context"

	"github.com/google/uuid"
)

// StaticRoleResolver grants every authenticated caller the same role. No
// operation wired up so far sets RequiredRole above RoleViewer, so this is
// the whole policy until a real role store exists.
type StaticRoleResolver struct {
	Role Role
}

func NewStaticRoleResolver(role Role) *StaticRoleResolver {
	return &StaticRoleResolver{Role: role}
}

func (s *StaticRoleResolver) RoleFor(ctx context.Context, userID uuid.UUID) (Role, error) {
	return s.Role, nil
}
