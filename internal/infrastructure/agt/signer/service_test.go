package signer_test

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efactura-agt/internal/infrastructure/agt/signer"
	"github.com/jhoicas/efactura-agt/pkg/agt"
)

const (
	chainP12   = "testdata/chain.p12"
	corruptP12 = "testdata/corrupt.p12"
	p12Pass    = "test-pass"
)

var payload = []byte(`{"number":7,"docType":"FT","totals":{"gross":"11.40","net":"10.00","tax":"1.40"}}`)

func readCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	c, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return c
}

func TestSign_JWSVerificableConCertificadoHoja(t *testing.T) {
	leaf := readCert(t, "testdata/leaf.crt")
	svc := signer.NewService(chainP12, p12Pass, "")

	bundle, err := svc.Sign(payload)
	require.NoError(t, err)

	tok, err := jwt.Parse(bundle.JWS, func(tok *jwt.Token) (interface{}, error) {
		return leaf.PublicKey, nil
	}, jwt.WithValidMethods([]string{"PS256"}))
	require.NoError(t, err)
	assert.True(t, tok.Valid)
	assert.Equal(t, "PS256", tok.Header["alg"])
	assert.Equal(t, bundle.Kid, tok.Header["kid"])

	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, "FT", claims["docType"])
}

func TestSign_PayloadCanonicoEnElJWS(t *testing.T) {
	svc := signer.NewService(chainP12, p12Pass, "kid-1")

	bundle, err := svc.Sign(payload)
	require.NoError(t, err)

	parts := strings.Split(bundle.JWS, ".")
	require.Len(t, parts, 3)
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	want, err := agt.Canonicalize(payload)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(body))
}

func TestSign_HeaderConCadenaX5C(t *testing.T) {
	leaf := readCert(t, "testdata/leaf.crt")
	inter := readCert(t, "testdata/intermediate.crt")
	svc := signer.NewService(chainP12, p12Pass, "kid-config")

	bundle, err := svc.Sign(payload)
	require.NoError(t, err)

	rawHeader, err := base64.RawURLEncoding.DecodeString(strings.Split(bundle.JWS, ".")[0])
	require.NoError(t, err)
	var header struct {
		Alg string   `json:"alg"`
		Kid string   `json:"kid"`
		X5C []string `json:"x5c"`
	}
	require.NoError(t, json.Unmarshal(rawHeader, &header))

	assert.Equal(t, "kid-config", header.Kid)
	require.Len(t, header.X5C, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString(leaf.Raw), header.X5C[0])
	assert.Equal(t, base64.StdEncoding.EncodeToString(inter.Raw), header.X5C[1])
	assert.Equal(t, header.X5C, bundle.X5C)
}

func TestSign_FirmarDosVecesVerificaIgual(t *testing.T) {
	leaf := readCert(t, "testdata/leaf.crt")
	svc := signer.NewService(chainP12, p12Pass, "")

	a, err := svc.Sign(payload)
	require.NoError(t, err)
	b, err := svc.Sign([]byte(`{"totals":{"tax":"1.40","net":"10.00","gross":"11.40"},"docType":"FT","number":7}`))
	require.NoError(t, err)

	pa, pb := strings.Split(a.JWS, "."), strings.Split(b.JWS, ".")
	assert.Equal(t, pa[:2], pb[:2])

	keyFn := func(*jwt.Token) (interface{}, error) { return leaf.PublicKey, nil }
	_, err = jwt.Parse(a.JWS, keyFn)
	assert.NoError(t, err)
	_, err = jwt.Parse(b.JWS, keyFn)
	assert.NoError(t, err)
}

func TestSign_KidPorDefectoEsHuellaDelCertificado(t *testing.T) {
	svc := signer.NewService(chainP12, p12Pass, "")
	bundle, err := svc.Sign(payload)
	require.NoError(t, err)

	creds, err := signer.LoadCredentials(chainP12, p12Pass)
	require.NoError(t, err)
	assert.Equal(t, creds.Thumbprint(), bundle.Kid)
	assert.NotEmpty(t, bundle.Kid)
}

func TestSign_ArchivoInexistente(t *testing.T) {
	svc := signer.NewService(filepath.Join(t.TempDir(), "no-existe.p12"), p12Pass, "")

	_, err := svc.Sign(payload)
	assert.ErrorIs(t, err, agt.ErrCredentialNotFound)
}

func TestSign_RutaVacia(t *testing.T) {
	_, err := signer.NewService("", "", "").Sign(payload)
	assert.ErrorIs(t, err, agt.ErrCredentialNotFound)
}

func TestSign_ContrasenaIncorrecta(t *testing.T) {
	svc := signer.NewService(chainP12, "otra", "")

	_, err := svc.Sign(payload)
	assert.ErrorIs(t, err, agt.ErrCredentialUnreadable)
}

func TestSign_ArchivoCorrupto(t *testing.T) {
	svc := signer.NewService(corruptP12, p12Pass, "")

	_, err := svc.Sign(payload)
	assert.ErrorIs(t, err, agt.ErrCredentialUnreadable)
}

func TestSign_PayloadInvalidoNoEsErrorDeCredencial(t *testing.T) {
	svc := signer.NewService(chainP12, p12Pass, "")

	_, err := svc.Sign([]byte(`no-json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, agt.ErrCredentialNotFound)
	assert.NotErrorIs(t, err, agt.ErrCredentialUnreadable)
}

func TestLoadCredentials_CadenaCompleta(t *testing.T) {
	creds, err := signer.LoadCredentials(chainP12, p12Pass)
	require.NoError(t, err)

	assert.Equal(t, "Emissor Teste", creds.Leaf.Subject.CommonName)
	require.Len(t, creds.Intermediates, 1)
	assert.Equal(t, "Test Intermediate CA", creds.Intermediates[0].Subject.CommonName)
	assert.Len(t, creds.X5C, 2)
}
