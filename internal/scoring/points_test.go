package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/rewards/internal/domain"
)

func TestBasePointsDistanceRates(t *testing.T) {
	cases := []struct {
		name     string
		actType  domain.ActivityType
		meters   float64
		expected int
	}{
		{"running", domain.TypeRunning, 5000, 50},
		{"walking", domain.TypeWalking, 5000, 25},
		{"cycling", domain.TypeCycling, 20000, 60},
		{"swimming", domain.TypeSwimming, 2000, 30},
		{"unknown type falls back to other", domain.ActivityType("rowing"), 10000, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			activity := domain.Activity{Type: tc.actType, DistanceMeters: tc.meters, DurationSec: 3600}
			require.Equal(t, tc.expected, BasePoints(activity))
		})
	}
}

func TestBasePointsDurationFallback(t *testing.T) {
	// No distance reported: 30 minutes of yoga at the per-minute rate.
	activity := domain.Activity{Type: domain.TypeYoga, DurationSec: 1800}
	require.Equal(t, 15, BasePoints(activity))
}

func TestBasePointsCalorieBonus(t *testing.T) {
	activity := domain.Activity{Type: domain.TypeRunning, DistanceMeters: 5000, Calories: 300}
	require.Equal(t, 65, BasePoints(activity))
}

func TestBasePointsCap(t *testing.T) {
	activity := domain.Activity{Type: domain.TypeRunning, DistanceMeters: 100_000, Calories: 2000}
	require.Equal(t, 200, BasePoints(activity))
}

func TestBasePointsEmptyActivity(t *testing.T) {
	require.Zero(t, BasePoints(domain.Activity{Type: domain.TypeRunning}))
}
