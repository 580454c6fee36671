// Package fraud scores activities against plausibility heuristics.
//
// Evaluate is a pure function: identical inputs always produce identical
// verdicts, which keeps flagging decisions auditable and testable. All
// store access happens in the consumer handler that assembles the Context.
package fraud

import (
	"fmt"

	"example.com/rewards/internal/domain"
)

// Context carries the per-user history the heuristics need. Counts exclude
// the activity under evaluation.
type Context struct {
	Overlapping     int // same-user activities overlapping the interval
	SameDay         int // same-user activities on the same calendar day
	SameDayPoints   int // points already awarded that day
	FlaggedTotal    int // historically flagged activities
	EstimatedPoints int // what this activity would award if verified
}

// Verdict is the evaluator's result.
type Verdict struct {
	Score      int
	Reasons    []string
	Suspicious bool
}

const (
	maxDurationSec = 8 * 60 * 60
	dailyCap       = 10
	dailyPointsCap = 500

	scoreThreshold  = 70
	reasonThreshold = 3
)

// speedLimitsKph caps plausible average speed per activity type.
var speedLimitsKph = map[domain.ActivityType]float64{
	domain.TypeRunning:  30,
	domain.TypeWalking:  10,
	domain.TypeCycling:  80,
	domain.TypeSwimming: 8,
}

const defaultSpeedLimitKph = 50

// distanceLimitsMeters caps plausible distance per activity type.
var distanceLimitsMeters = map[domain.ActivityType]float64{
	domain.TypeRunning:  100_000,
	domain.TypeWalking:  50_000,
	domain.TypeCycling:  300_000,
	domain.TypeSwimming: 20_000,
}

const defaultDistanceLimitMeters = 150_000

var trustedSources = map[string]struct{}{
	"strava":       {},
	"apple_health": {},
	"google_fit":   {},
	"fitbit":       {},
}

// Evaluate applies the additive heuristics and returns a deterministic
// verdict. Checks are independent and order-insensitive; reasons are
// appended in a fixed order.
func Evaluate(activity domain.Activity, userCtx Context) Verdict {
	var v Verdict

	if speed := activity.SpeedKph(); speed > 0 {
		limit, ok := speedLimitsKph[activity.Type]
		if !ok {
			limit = defaultSpeedLimitKph
		}
		if speed > limit {
			v.add(50, fmt.Sprintf("implausible speed: %.2f km/h", speed))
		}
	}

	if activity.DurationSec > maxDurationSec {
		v.add(30, fmt.Sprintf("excessive duration: %.2f hours", float64(activity.DurationSec)/3600))
	}

	if activity.HasDistance() {
		limit, ok := distanceLimitsMeters[activity.Type]
		if !ok {
			limit = defaultDistanceLimitMeters
		}
		if activity.DistanceMeters > limit {
			v.add(40, fmt.Sprintf("excessive distance: %.2f km", activity.DistanceKm()))
		}
	}

	if userCtx.Overlapping > 0 {
		v.add(60, fmt.Sprintf("overlaps %d other activities", userCtx.Overlapping))
	}

	if userCtx.SameDay >= dailyCap {
		v.add(20, fmt.Sprintf("daily activity cap exceeded: %d activities", userCtx.SameDay+1))
	}

	if total := userCtx.SameDayPoints + userCtx.EstimatedPoints; total > dailyPointsCap {
		v.add(30, fmt.Sprintf("daily points cap exceeded: %d points", total))
	}

	if _, ok := trustedSources[activity.Source]; !ok {
		v.add(10, fmt.Sprintf("untrusted source: %s", activity.Source))
	}

	if userCtx.FlaggedTotal > 0 {
		penalty := userCtx.FlaggedTotal * 5
		if penalty > 30 {
			penalty = 30
		}
		v.add(penalty, fmt.Sprintf("prior flagged activities: %d", userCtx.FlaggedTotal))
	}

	v.Suspicious = v.Score >= scoreThreshold || len(v.Reasons) >= reasonThreshold
	return v
}

func (v *Verdict) add(score int, reason string) {
	v.Score += score
	v.Reasons = append(v.Reasons, reason)
}
