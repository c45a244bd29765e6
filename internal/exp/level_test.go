package exp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelCurve(t *testing.T) {
	cases := []struct {
		total int64
		level int
	}{
		{0, 0},
		{1, 3},
		{9, 10},
		{10, 10},
		{99, 20},
		{100, 20},
		{999, 30},
		{1000, 30},
		{9999, 40},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, Level(tc.total), "total=%d", tc.total)
	}
}

func TestLevelNeverNegative(t *testing.T) {
	assert.Equal(t, 0, Level(-1))
	assert.Equal(t, 0, Level(-500))
}

func TestLevelMonotonic(t *testing.T) {
	prev := Level(0)
	for total := int64(1); total <= 2000; total++ {
		cur := Level(total)
		assert.GreaterOrEqual(t, cur, prev, "total=%d", total)
		prev = cur
	}
}

func TestAttestationRewardTiers(t *testing.T) {
	cases := []struct {
		level  int
		reward int64
	}{
		{0, 0},
		{1, 0},
		{2, 25},
		{5, 25},
		{6, 50},
		{10, 50},
		{11, 100},
		{30, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.reward, AttestationReward(tc.level), "level=%d", tc.level)
	}
}
