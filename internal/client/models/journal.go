package models

// WeightEntry is one weigh-in.
type WeightEntry struct {
	ID        string  `json:"id"`
	Date      string  `json:"date"` // YYYY-MM-DD
	Kilograms float64 `json:"kilograms"`
	Note      string  `json:"note,omitempty"`

	Meta
}

// ExerciseEntry is one logged activity.
type ExerciseEntry struct {
	ID             string  `json:"id"`
	Date           string  `json:"date"` // YYYY-MM-DD
	Name           string  `json:"name"`
	DurationMin    int     `json:"durationMin"`
	CaloriesBurned float64 `json:"caloriesBurned"`

	Meta
}

// Milestone is a weight-loss milestone computed by the backend.
type Milestone struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Kilograms  float64 `json:"kilograms"`
	AchievedAt string  `json:"achievedAt,omitempty"`
}
