package scoring

import (
	"math"
	"time"

	"example.com/rewards/internal/domain"
)

// FitnessLevel is the self-declared tier on a user's sport profile.
type FitnessLevel string

const (
	LevelBeginner     FitnessLevel = "beginner"
	LevelIntermediate FitnessLevel = "intermediate"
	LevelAdvanced     FitnessLevel = "advanced"
	LevelElite        FitnessLevel = "elite"
)

// ParseFitnessLevel validates a fitness level string.
func ParseFitnessLevel(raw string) (FitnessLevel, bool) {
	switch FitnessLevel(raw) {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelElite:
		return FitnessLevel(raw), true
	}
	return "", false
}

// Profile is a user's sport profile used to contextualize effort.
type Profile struct {
	UserID          string
	FitnessLevel    FitnessLevel
	PrimarySport    domain.ActivityType
	SecondarySports []domain.ActivityType
	UpdatedAt       time.Time
}

// Conditions are the situational factors reported with an effort calculation.
type Conditions struct {
	Terrain        string   // flat, mixed, hilly, mountainous
	Weather        string   // normal, hot, cold, rainy, windy
	AltitudeMeters float64  // 0 = unreported
	SleepHours     float64  // 0 = unreported
	RecoveryScore  *float64 // 0-100, nil = unreported
}

// EffortRange scales the relative effort into a reward multiplier.
type EffortRange struct {
	Min float64
	Max float64
}

// DefaultEffortRange matches the production multiplier window.
var DefaultEffortRange = EffortRange{Min: 0.5, Max: 2.0}

// DefaultAbsoluteEffort is assumed when the client reports no perceived effort.
const DefaultAbsoluteEffort = 70

// fitnessLevelModifiers boost effort for less-trained users: the same
// session is harder for a beginner than for an elite athlete.
var fitnessLevelModifiers = map[FitnessLevel]float64{
	LevelBeginner:     1.2,
	LevelIntermediate: 1.0,
	LevelAdvanced:     0.9,
	LevelElite:        0.8,
}

// Activity-type modifiers reward specialization less: a user's primary sport
// is "easier" for them, so it earns a lower relative effort.
const (
	primarySportModifier   = 0.9
	unfamiliarTypeModifier = 1.1
)

// RelativeEffort normalizes an absolute 0-100 effort against the user's
// profile and the reported conditions, clamped to [0,100]. Without a profile
// the absolute value passes through untouched (still clamped).
func RelativeEffort(absolute float64, profile *Profile, activityType domain.ActivityType, cond Conditions) float64 {
	if absolute <= 0 {
		absolute = DefaultAbsoluteEffort
	}
	relative := absolute
	if profile != nil {
		relative *= fitnessModifier(profile.FitnessLevel)
		relative *= activityTypeModifier(activityType, profile)
		relative *= contextModifier(cond)
	}
	return math.Min(100, math.Max(0, relative))
}

// EffortMultiplier scales relative effort (0-100) onto the configured range.
func EffortMultiplier(relative float64, r EffortRange) float64 {
	return r.Min + relative/100*(r.Max-r.Min)
}

func fitnessModifier(level FitnessLevel) float64 {
	if m, ok := fitnessLevelModifiers[level]; ok {
		return m
	}
	return 1.0
}

func activityTypeModifier(activityType domain.ActivityType, profile *Profile) float64 {
	if activityType == profile.PrimarySport {
		return primarySportModifier
	}
	for _, sport := range profile.SecondarySports {
		if activityType == sport {
			return (primarySportModifier + unfamiliarTypeModifier) / 2
		}
	}
	return unfamiliarTypeModifier
}

func contextModifier(cond Conditions) float64 {
	modifier := 1.0

	switch cond.Terrain {
	case "hilly":
		modifier *= 1.1
	case "mixed":
		modifier *= 1.05
	case "mountainous":
		modifier *= 1.2
	}

	switch cond.Weather {
	case "hot":
		modifier *= 1.15
	case "cold":
		modifier *= 1.05
	case "rainy", "windy":
		modifier *= 1.1
	}

	// Each 500m above 1000m adds 2% difficulty.
	if cond.AltitudeMeters > 1000 {
		modifier *= 1.0 + 0.02*math.Floor((cond.AltitudeMeters-1000)/500)
	}

	// Under 7 hours of sleep adds 5% per missing hour.
	if cond.SleepHours > 0 && cond.SleepHours < 7 {
		modifier *= 1.0 + 0.05*(7-cond.SleepHours)
	}

	// Incomplete recovery adds up to 20%.
	if cond.RecoveryScore != nil {
		modifier *= 1.0 + 0.2*(1-*cond.RecoveryScore/100)
	}

	return modifier
}
