package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContourSetAncestors(t *testing.T) {
	set := ContourSet{Contours: []Contour{
		{Next: NoLink, Prev: NoLink, Child: 1, Parent: NoLink},
		{Next: NoLink, Prev: NoLink, Child: 2, Parent: 0},
		{Next: NoLink, Prev: NoLink, Child: NoLink, Parent: 1},
	}}

	require.Equal(t, []int{1, 0}, set.Ancestors(2))
	require.Empty(t, set.Ancestors(0))
	require.Nil(t, set.Ancestors(5))
	require.True(t, set.At(2).HasParent())
	require.False(t, set.At(2).HasChild())
}

func TestContourSetAncestors_Cycle(t *testing.T) {
	set := ContourSet{Contours: []Contour{
		{Child: 1, Parent: 1},
		{Child: 0, Parent: 0},
	}}

	require.Len(t, set.Ancestors(0), 2)
}
