package dto

// CreateSeriesRequest body para POST /api/series.
type CreateSeriesRequest struct {
	CompanyID  string `json:"companyId"`
	Code       string `json:"code"`
	DocType    string `json:"docType"`
	NextNumber int64  `json:"nextNumber,omitempty"` // 0 = empieza en 1
	Active     *bool  `json:"active,omitempty"`     // nil = activa
}

// UpdateSeriesRequest body para PATCH /api/series/:id. Solo se aplican los campos presentes.
type UpdateSeriesRequest struct {
	Code       *string `json:"code,omitempty"`
	NextNumber *int64  `json:"nextNumber,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// SeriesResponse serie en respuestas.
type SeriesResponse struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	Code       string `json:"code"`
	DocType    string `json:"docType"`
	NextNumber int64  `json:"nextNumber"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}
