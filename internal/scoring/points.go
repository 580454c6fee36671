// Package scoring converts activities into reward points and computes
// profile-normalized effort.
package scoring

import (
	"math"

	"example.com/rewards/internal/domain"
)

// pointsPerKm is the base reward rate per activity type.
var pointsPerKm = map[domain.ActivityType]float64{
	domain.TypeRunning:            10,
	domain.TypeWalking:            5,
	domain.TypeCycling:            3,
	domain.TypeSwimming:           15,
	domain.TypeFunctionalTraining: 8,
	domain.TypeYoga:               7,
	domain.TypeDance:              8,
	domain.TypeSports:             7,
	domain.TypeOther:              5,
}

const (
	// pointsPerMinute is the fallback rate for activities without distance.
	pointsPerMinute = 0.5
	// caloriesPerPoint converts the calorie bonus.
	caloriesPerPoint = 20
	// maxPointsPerActivity caps the reward for any single activity.
	maxPointsPerActivity = 200
)

// BasePoints computes the reward for an activity: distance times the
// per-type rate, or a per-minute rate when no distance was reported, plus a
// calorie bonus, capped at maxPointsPerActivity. Deterministic; also used by
// the fraud evaluator to estimate a pending activity's award.
func BasePoints(activity domain.Activity) int {
	rate, ok := pointsPerKm[activity.Type]
	if !ok {
		rate = pointsPerKm[domain.TypeOther]
	}

	var points int
	if activity.HasDistance() {
		points = int(math.Round(activity.DistanceKm() * rate))
	} else if activity.DurationSec > 0 {
		points = int(math.Round(float64(activity.DurationSec) / 60 * pointsPerMinute))
	}

	if activity.Calories > 0 {
		points += int(math.Round(activity.Calories / caloriesPerPoint))
	}

	if points > maxPointsPerActivity {
		points = maxPointsPerActivity
	}
	return points
}
