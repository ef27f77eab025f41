package models

// MealSlot is the meal a diary entry belongs to.
type MealSlot string

const (
	MealBreakfast MealSlot = "breakfast"
	MealLunch     MealSlot = "lunch"
	MealDinner    MealSlot = "dinner"
	MealSnack     MealSlot = "snack"
)

// DiaryEntry is one logged item on a diary day. Nutrient totals are
// denormalized at logging time so the diary stays correct even if the
// referenced food is edited later.
type DiaryEntry struct {
	ID       string   `json:"id"`
	Date     string   `json:"date"` // YYYY-MM-DD
	Meal     MealSlot `json:"meal"`
	FoodID   string   `json:"foodId,omitempty"`
	RecipeID string   `json:"recipeId,omitempty"`
	Quantity float64  `json:"quantity"`
	Unit     string   `json:"unit"`
	Calories float64  `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`

	Meta
}

// DiaryDay tracks per-day state, currently only the completion toggle.
// Its outbox entity id is the date itself.
type DiaryDay struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`

	Meta
}
