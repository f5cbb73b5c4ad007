// Package agt: contrato de firma de documentos para el registro fiscal AGT (JWS compacto PS256).

package agt

import "errors"

// Errores del firmante. Ambos indican un problema de configuración, no un fallo transitorio.
var (
	ErrCredentialNotFound   = errors.New("agt: credencial de firma no encontrada")
	ErrCredentialUnreadable = errors.New("agt: credencial de firma ilegible (contraseña o archivo inválido)")
)

// SignatureBundle es el resultado de firmar un documento: el JWS compacto
// (header.payload.firma) más los datos de verificación que también van en el header.
type SignatureBundle struct {
	JWS string
	Kid string
	// X5C cadena de certificados (hoja primero) en base64 estándar del DER.
	X5C []string
}

// Signer firma el payload de una factura.
type Signer interface {
	// Sign canonicaliza el payload JSON y devuelve el bundle firmado.
	// Los errores de credenciales envuelven ErrCredentialNotFound o ErrCredentialUnreadable.
	Sign(payload []byte) (*SignatureBundle, error)
}
