package typeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndValidate(t *testing.T) {
	id := NewFloorID()
	require.NoError(t, Validate(id, PrefixFloor))
	assert.Error(t, Validate(id, PrefixSpace))
	assert.Error(t, Validate("not an id", PrefixFloor))
	assert.NotEqual(t, id, NewFloorID())
}
