package facade

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRoleResolverAlwaysReturnsConfiguredRole(t *testing.T) {
	resolver := NewStaticRoleResolver(RoleEditor)

	role, err := resolver.RoleFor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, role)

	// A different caller gets the same answer; the resolver has no
	// per-user state to distinguish them.
	role, err = resolver.RoleFor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, role)
}
