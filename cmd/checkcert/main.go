// checkcert diagnostica el certificado de firma AGT antes de arrancar el worker:
// abre el .p12, muestra la cadena y el kid, y firma un documento de prueba.
//
// Uso: go run ./cmd/checkcert [ruta.p12]
// Sin argumento usa AGT_P12_PATH; la contraseña siempre sale de AGT_P12_PASSWORD.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/efactura-agt/internal/infrastructure/agt/signer"
	"github.com/jhoicas/efactura-agt/pkg/agt"
	"github.com/jhoicas/efactura-agt/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(2)
	}
	path := cfg.AGT.P12Path
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	fmt.Println("🔍 DIAGNÓSTICO DE CERTIFICADO AGT")
	fmt.Println("----------------------------------")
	fmt.Printf("📂 Archivo: %s\n", path)

	creds, err := signer.LoadCredentials(path, cfg.AGT.P12Password)
	switch {
	case errors.Is(err, agt.ErrCredentialNotFound):
		fmt.Println("\n❌ ERROR DE ARCHIVO: no existe o AGT_P12_PATH está vacío.")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	case err != nil:
		fmt.Println("\n❌ ERROR DE CONTRASEÑA O FORMATO:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	fmt.Println("\n✅ Certificado hoja")
	fmt.Printf("   Sujeto:  %s\n", creds.Leaf.Subject)
	fmt.Printf("   Emisor:  %s\n", creds.Leaf.Issuer)
	fmt.Printf("   Vigente: %s → %s\n", creds.Leaf.NotBefore.Format(time.DateOnly), creds.Leaf.NotAfter.Format(time.DateOnly))
	if now.After(creds.Leaf.NotAfter) {
		fmt.Println("   ⚠️  VENCIDO")
	} else if days := int(creds.Leaf.NotAfter.Sub(now).Hours() / 24); days < 30 {
		fmt.Printf("   ⚠️  vence en %d días\n", days)
	}
	for i, c := range creds.Intermediates {
		fmt.Printf("   Intermedio %d: %s\n", i+1, c.Subject)
	}
	fmt.Printf("   x5c: %d certificados\n", len(creds.X5C))

	fmt.Printf("   Huella SHA-256: %s\n", creds.Thumbprint())

	bundle, err := signer.NewService(path, cfg.AGT.P12Password, cfg.AGT.JWSKid).Sign([]byte(`{"check":true}`))
	if err != nil {
		fmt.Println("\n❌ La firma de prueba falló:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n✨ Firma PS256 de prueba correcta (kid %s, %d bytes)\n", bundle.Kid, len(bundle.JWS))
}
