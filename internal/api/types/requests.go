package types

// CanvasPatchRequest renames a canvas and/or changes its visibility.
type CanvasPatchRequest struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=200"`
	IsPublic *bool   `json:"is_public"`
}

type ShareRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}
