package agt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonicalize devuelve la serialización estable de un documento JSON:
// claves de objeto ordenadas, sin espacios, números tal cual llegaron y sin escape HTML.
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("agt: payload JSON inválido: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("agt: payload JSON con datos extra")
	}

	// encoding/json ordena las claves de map[string]any al serializar.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("agt: serializar payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
