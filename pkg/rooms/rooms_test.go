package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetdispatch/pkg/models"
)

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "bus:v1", Bus("v1"))
	assert.Equal(t, "user:u1", User("u1"))
	assert.Equal(t, "company:c1", Company("c1"))
	assert.Equal(t, "site:s1", Site("s1"))
	assert.Equal(t, "trip:t1", Trip("t1"))
	assert.Equal(t, "role:guardian", Role(models.RoleGuardian))
}
