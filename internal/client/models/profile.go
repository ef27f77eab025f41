package models

// Profile is the user's account profile and goals. The local store keeps a
// single row keyed by the account id.
type Profile struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	DisplayName      string  `json:"displayName"`
	HeightCm         float64 `json:"heightCm"`
	TargetWeightKg   float64 `json:"targetWeightKg"`
	DailyCalorieGoal int     `json:"dailyCalorieGoal"`
	WeightUnit       string  `json:"weightUnit"` // "kg" or "lb"

	Meta
}

// TokenPair is the access/refresh token pair issued at login and replaced on
// every successful refresh. Both tokens are opaque to the client; staleness
// of the access token is only discovered through a rejected request.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
