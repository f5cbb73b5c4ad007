// Servicio de firma JWS compacta (PS256 con x5c) para documentos enviados al registro AGT.

package signer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jhoicas/efactura-agt/pkg/agt"
)

// Service implementa agt.Signer. Lee el .p12 en cada llamada: la llave descifrada
// no queda en memoria entre firmas.
type Service struct {
	p12Path     string
	p12Password string
	kid         string
}

// NewService crea el servicio. kid vacío = huella SHA-256 del certificado hoja.
func NewService(p12Path, p12Password, kid string) *Service {
	return &Service{p12Path: p12Path, p12Password: p12Password, kid: kid}
}

type jwsHeader struct {
	Alg string   `json:"alg"`
	Kid string   `json:"kid"`
	X5C []string `json:"x5c"`
	Typ string   `json:"typ"`
}

// Sign implementa agt.Signer.
func (s *Service) Sign(payload []byte) (*agt.SignatureBundle, error) {
	canonical, err := agt.Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	creds, err := LoadCredentials(s.p12Path, s.p12Password)
	if err != nil {
		return nil, err
	}

	kid := s.kid
	if kid == "" {
		kid = creds.Thumbprint()
	}

	header, err := json.Marshal(jwsHeader{
		Alg: jwt.SigningMethodPS256.Alg(),
		Kid: kid,
		X5C: creds.X5C,
		Typ: "JOSE",
	})
	if err != nil {
		return nil, fmt.Errorf("agt: serializar header: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(canonical)
	sig, err := jwt.SigningMethodPS256.Sign(signingInput, creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("agt: firmar PS256: %w", err)
	}

	return &agt.SignatureBundle{
		JWS: signingInput + "." + base64.RawURLEncoding.EncodeToString(sig),
		Kid: kid,
		X5C: creds.X5C,
	}, nil
}

var _ agt.Signer = (*Service)(nil)
