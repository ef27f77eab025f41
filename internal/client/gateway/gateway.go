// Package gateway is the typed HTTP/JSON client for the kaltrack backend.
// It is stateless apart from the injected token source: one logical backend
// operation per method, structured results or classified errors.
package gateway

import (
	"context"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// TokenSource supplies bearer tokens and resolves authorization failures.
// Implemented by the auth token coordinator.
type TokenSource interface {
	// AccessToken returns the current access token.
	AccessToken(ctx context.Context) (string, error)

	// Resolve is called after a request failed with 401 using failedToken.
	// It returns a token to retry with, refreshing at most once across all
	// concurrent callers, or common.ErrUnauthenticated.
	Resolve(ctx context.Context, failedToken string) (string, error)
}

// DiaryDayPayload is a day's remote state: its entries plus the completion
// toggle.
type DiaryDayPayload struct {
	Date      string              `json:"date"`
	Completed bool                `json:"completed"`
	Entries   []models.DiaryEntry `json:"entries"`
}

// Gateway is the backend surface consumed by services and the sync queue.
type Gateway interface {
	// Auth (unauthenticated endpoints).
	Login(ctx context.Context, email, password string) (models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)

	// Diary.
	DiaryDay(ctx context.Context, date string) (*DiaryDayPayload, error)
	CreateDiaryEntry(ctx context.Context, e models.DiaryEntry) error
	UpdateDiaryEntry(ctx context.Context, e models.DiaryEntry) error
	DeleteDiaryEntry(ctx context.Context, id string) error
	CompleteDiaryDay(ctx context.Context, date string) error
	UncompleteDiaryDay(ctx context.Context, date string) error

	// Foods.
	CreateFood(ctx context.Context, f models.Food) error
	UpdateFood(ctx context.Context, f models.Food) error
	DeleteFood(ctx context.Context, id string) error
	PromoteFood(ctx context.Context, id string) error
	FoodByBarcode(ctx context.Context, code string) (*models.Food, error)
	SubmitNutritionLabel(ctx context.Context, image []byte) (*models.NutritionLabel, error)

	// Recipes.
	CreateRecipe(ctx context.Context, r models.Recipe) error
	UpdateRecipe(ctx context.Context, r models.Recipe) error
	DeleteRecipe(ctx context.Context, id string) error

	// Saved meals.
	CreateSavedMeal(ctx context.Context, m models.SavedMeal) error
	UpdateSavedMeal(ctx context.Context, m models.SavedMeal) error
	DeleteSavedMeal(ctx context.Context, id string) error

	// Weight entries.
	CreateWeightEntry(ctx context.Context, w models.WeightEntry) error
	UpdateWeightEntry(ctx context.Context, w models.WeightEntry) error
	DeleteWeightEntry(ctx context.Context, id string) error

	// Exercise entries.
	CreateExerciseEntry(ctx context.Context, e models.ExerciseEntry) error
	UpdateExerciseEntry(ctx context.Context, e models.ExerciseEntry) error
	DeleteExerciseEntry(ctx context.Context, id string) error

	// User.
	Profile(ctx context.Context) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) error
	ExportData(ctx context.Context) ([]byte, error)
	DeleteAccount(ctx context.Context) error
	Milestones(ctx context.Context) ([]models.Milestone, error)
	MarkMilestonesViewed(ctx context.Context) error
}
