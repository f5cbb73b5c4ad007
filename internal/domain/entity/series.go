package entity

import "time"

// Series es la secuencia de numeración de documentos por empresa y tipo de documento.
// NextNumber solo se lee e incrementa bajo bloqueo de fila dentro de la transacción de emisión.
type Series struct {
	ID         string
	CompanyID  string
	Code       string // Prefijo de la serie (ej: "FT2025")
	DocType    string // FT, FR, NC, ND...
	NextNumber int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
