package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateClampsOutsideRange(t *testing.T) {
	table := []Breakpoint{
		{Input: 0, Points: 10},
		{Input: 10, Points: 50},
		{Input: 20, Points: 100},
	}

	assert.Equal(t, 10.0, Interpolate(table, -5))
	assert.Equal(t, 100.0, Interpolate(table, 999))
	assert.Equal(t, 30.0, Interpolate(table, 5))
	assert.Equal(t, 50.0, Interpolate(table, 10))
}

func TestInterpolateEmptyTable(t *testing.T) {
	assert.Equal(t, 0.0, Interpolate(nil, 5))
}

func TestPiecewiseLogInterpolate(t *testing.T) {
	table := []Breakpoint{
		LogBreakpoint(1, 0),
		LogBreakpoint(100, 50),
		LogBreakpoint(10000, 100),
	}

	assert.InDelta(t, 25, PiecewiseLogInterpolate(table, 10), 0.01)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 1, ClampInt(-5, 1, 100))
	assert.Equal(t, 100, ClampInt(500, 1, 100))
	assert.Equal(t, 50, ClampInt(50, 1, 100))
}
