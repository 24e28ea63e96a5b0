package dto

import "encoding/json"

type UserResponse struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Subscription bool   `json:"subscription"`
}

type CategoryResponse struct {
	ID         string          `json:"id"`
	Nombre     string          `json:"nombre"`
	Color      string          `json:"color"`
	Porcentaje json.RawMessage `json:"porcentaje"`
	Icon       *string         `json:"icon"`
}

type CategoryListResponse struct {
	FormattedCategories []CategoryResponse `json:"formattedCategories"`
}

type AccountResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type AccountListResponse struct {
	FormattedAccounts []AccountResponse `json:"formattedAccounts"`
}

type MethodResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CardType  string `json:"cardType"`
	IDAccount string `json:"idAccount"`
}

type MethodListResponse struct {
	FormattedMethods []MethodResponse `json:"formattedMethods"`
}
