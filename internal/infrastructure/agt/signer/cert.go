// Carga de credenciales de firma desde un bundle PKCS#12 (.p12/.pfx) con cadena completa.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/efactura-agt/pkg/agt"
)

// Credentials llave privada + certificado hoja + intermedios leídos de un .p12.
type Credentials struct {
	PrivateKey    *rsa.PrivateKey
	Leaf          *x509.Certificate
	Intermediates []*x509.Certificate
	// X5C hoja primero, cada certificado en base64 del DER (PEM sin cabeceras ni saltos).
	X5C []string
}

// Thumbprint devuelve la huella SHA-256 del certificado hoja en base64url sin padding.
func (c *Credentials) Thumbprint() string {
	sum := sha256.Sum256(c.Leaf.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// LoadCredentials lee y descifra el bundle. pkcs12.Decode solo admite un certificado,
// por eso se convierte a bloques PEM y se arma la cadena a mano.
func LoadCredentials(path, password string) (*Credentials, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: ruta del .p12 no configurada", agt.ErrCredentialNotFound)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", agt.ErrCredentialNotFound, path)
		}
		return nil, fmt.Errorf("%w: leer p12: %v", agt.ErrCredentialUnreadable, err)
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decodificar p12: %v", agt.ErrCredentialUnreadable, err)
	}

	var (
		key   crypto.Signer
		certs []*x509.Certificate
	)
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: parsear certificado: %v", agt.ErrCredentialUnreadable, err)
			}
			certs = append(certs, c)
		case "PRIVATE KEY":
			k, err := parsePrivateKey(b.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", agt.ErrCredentialUnreadable, err)
			}
			key = k
		}
	}
	if key == nil {
		return nil, fmt.Errorf("%w: el p12 no contiene llave privada", agt.ErrCredentialUnreadable)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: PS256 requiere llave RSA", agt.ErrCredentialUnreadable)
	}

	leafIdx := -1
	for i, c := range certs {
		if pub, ok := c.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); ok && pub.Equal(rsaKey.Public()) {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, fmt.Errorf("%w: ningún certificado corresponde a la llave privada", agt.ErrCredentialUnreadable)
	}

	creds := &Credentials{PrivateKey: rsaKey, Leaf: certs[leafIdx]}
	creds.X5C = append(creds.X5C, toX5C(creds.Leaf))
	for i, c := range certs {
		if i == leafIdx {
			continue
		}
		creds.Intermediates = append(creds.Intermediates, c)
		creds.X5C = append(creds.X5C, toX5C(c))
	}
	return creds, nil
}

// ToPEM entrega llaves RSA como PKCS#1 dentro de un bloque "PRIVATE KEY".
func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if s, ok := k.(crypto.Signer); ok {
			return s, nil
		}
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("formato de llave privada no soportado")
}

// toX5C codifica el certificado en PEM y quita cabecera, pie y saltos de línea.
func toX5C(c *x509.Certificate) string {
	armoured := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
	var sb strings.Builder
	for _, line := range bytes.Split(armoured, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.HasPrefix(line, []byte("---")) {
			continue
		}
		sb.Write(line)
	}
	return sb.String()
}
