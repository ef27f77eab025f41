package models

// Food is a food item users log against. Nutrients are per serving.
type Food struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	Barcode     string  `json:"barcode,omitempty"`
	ServingSize float64 `json:"servingSize"`
	ServingUnit string  `json:"servingUnit"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`

	// Shared is true once the food has been promoted from user-created to
	// platform status. Promotion happens server-side.
	Shared bool `json:"shared"`

	Meta
}

// NutritionLabel holds the fields parsed out of a photographed nutrition
// label by the backend.
type NutritionLabel struct {
	Name        string  `json:"name"`
	ServingSize float64 `json:"servingSize"`
	ServingUnit string  `json:"servingUnit"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
}
