package submission

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OutcomeKind clasificación del intento contra el registro.
type OutcomeKind int

const (
	// OutcomeAccepted el registro aceptó el documento.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeRejected el registro rechazó el contenido: no se reintenta.
	OutcomeRejected
	// OutcomeTransient timeout, 5xx, red u otro no-2xx: se reintenta con backoff.
	OutcomeTransient
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "transient"
	}
}

// Outcome resultado de un intento. Ningún fallo del registro sale del worker como error.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int // 0 si no hubo respuesta
	Body       string
	Message    string
}

type registryBody struct {
	Status string `json:"status"`
}

// Classify traduce la respuesta (o el error de transporte) a un Outcome.
// 2xx = aceptado salvo que el cuerpo diga status "rejected"; 422 = rechazo de contenido;
// cualquier otra cosa es transitoria.
func Classify(resp *RegistryResponse, callErr error) Outcome {
	if callErr != nil {
		return Outcome{Kind: OutcomeTransient, Message: callErr.Error()}
	}
	if resp == nil {
		return Outcome{Kind: OutcomeTransient, Message: "registro sin respuesta"}
	}
	out := Outcome{StatusCode: resp.StatusCode, Body: string(resp.Body)}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var b registryBody
		if json.Unmarshal(resp.Body, &b) == nil && strings.EqualFold(b.Status, "rejected") {
			out.Kind = OutcomeRejected
			out.Message = fmt.Sprintf("registro rechazó el documento (HTTP %d)", resp.StatusCode)
			return out
		}
		out.Kind = OutcomeAccepted
	case resp.StatusCode == http.StatusUnprocessableEntity:
		out.Kind = OutcomeRejected
		out.Message = fmt.Sprintf("registro rechazó el documento (HTTP %d)", resp.StatusCode)
	default:
		out.Kind = OutcomeTransient
		out.Message = fmt.Sprintf("registro respondió HTTP %d", resp.StatusCode)
	}
	return out
}

// Backoff devuelve la espera tras el intento número attempt (1-based), limitada al último valor.
func Backoff(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
