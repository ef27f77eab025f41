package models

// RecipeIngredient references a food with an amount. Stored as part of the
// recipe's JSON ingredients column, no foreign key.
type RecipeIngredient struct {
	FoodID   string  `json:"foodId"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Recipe is a user-composed dish made of ingredient references.
type Recipe struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Servings    float64            `json:"servings"`
	Ingredients []RecipeIngredient `json:"ingredients"`
	Notes       string             `json:"notes,omitempty"`

	Meta
}
