package validator

import (
	"playstats_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var openGrid = Grid{Data: "4000\n0000\n0003", Width: 4, Height: 3}

func TestGridValidator(t *testing.T) {
	v := NewGridValidator()

	tests := []struct {
		name  string
		grid  Grid
		moves []Direction
		valid bool
		x, y  int
	}{
		{"shortest path", openGrid, []Direction{Right, Right, Right, Down, Down}, true, 3, 2},
		{"longer path", openGrid, []Direction{Down, Down, Right, Up, Right, Down, Right}, true, 3, 2},
		{"stops short", openGrid, []Direction{Right, Right}, false, 2, 0},
		{"out of bounds", openGrid, []Direction{Left}, false, 0, 0},
		{"into wall", Grid{Data: "4100\n0003", Width: 4, Height: 2}, []Direction{Right, Down}, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Validate(tt.moves, tt.grid)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.x, res.FinalX)
			assert.Equal(t, tt.y, res.FinalY)
		})
	}
}

func TestGridValidatorRejectsBadInput(t *testing.T) {
	v := NewGridValidator()

	_, err := v.Validate(nil, openGrid)
	assert.ErrorIs(t, err, util.ErrInvalidMoves)

	_, err = v.Validate([]Direction{Right, 7}, openGrid)
	assert.ErrorIs(t, err, util.ErrInvalidMoves)

	_, err = v.Validate([]Direction{Right}, Grid{Data: "0003"})
	assert.ErrorIs(t, err, util.ErrInvalidMoves)
}
