package models

// SavedMealItem is one component of a saved meal.
type SavedMealItem struct {
	FoodID   string  `json:"foodId"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// SavedMeal is a reusable group of foods logged together.
type SavedMeal struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Items []SavedMealItem `json:"items"`

	Meta
}
