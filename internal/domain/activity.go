package domain

import "time"

// ActivityType enumerates the canonical exercise categories accepted at ingestion.
type ActivityType string

const (
	TypeRunning            ActivityType = "running"
	TypeWalking            ActivityType = "walking"
	TypeCycling            ActivityType = "cycling"
	TypeSwimming           ActivityType = "swimming"
	TypeFunctionalTraining ActivityType = "functional_training"
	TypeYoga               ActivityType = "yoga"
	TypeDance              ActivityType = "dance"
	TypeSports             ActivityType = "sports"
	TypeOther              ActivityType = "other"
)

var knownTypes = map[ActivityType]struct{}{
	TypeRunning:            {},
	TypeWalking:            {},
	TypeCycling:            {},
	TypeSwimming:           {},
	TypeFunctionalTraining: {},
	TypeYoga:               {},
	TypeDance:              {},
	TypeSports:             {},
	TypeOther:              {},
}

// ParseActivityType normalizes a provider-supplied type string. Unknown
// values map to TypeOther so exotic workouts still flow through the pipeline.
func ParseActivityType(raw string) ActivityType {
	t := ActivityType(raw)
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeOther
}

// ActivityStatus tracks the review state of an activity.
type ActivityStatus string

const (
	StatusPending  ActivityStatus = "pending"
	StatusVerified ActivityStatus = "verified"
	StatusFlagged  ActivityStatus = "flagged"
	StatusRejected ActivityStatus = "rejected"
)

// Activity is the canonical workout record stored in PostgreSQL.
// (UserID, Source, SourceID) is the idempotency anchor: a provider payload
// replayed with the same triple must never create a second row.
type Activity struct {
	ID             string
	UserID         string
	Source         string
	SourceID       string
	Type           ActivityType
	StartTime      time.Time
	EndTime        time.Time
	DurationSec    int
	DistanceMeters float64 // 0 means the provider reported no distance
	Calories       float64
	ElevationGain  float64
	Status         ActivityStatus
	Processed      bool
	FraudScore     int
	FraudReasons   []string
	Points         int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasDistance reports whether the provider supplied a usable distance.
func (a Activity) HasDistance() bool {
	return a.DistanceMeters > 0
}

// DistanceKm returns the distance in kilometres.
func (a Activity) DistanceKm() float64 {
	return a.DistanceMeters / 1000
}

// SpeedKph returns the average speed in km/h, or 0 when it cannot be derived.
func (a Activity) SpeedKph() float64 {
	if a.DurationSec <= 0 || !a.HasDistance() {
		return 0
	}
	return a.DistanceMeters / float64(a.DurationSec) * 3.6
}
