// seed_series genera el script SQL de alta de series de numeración a partir de
// una planilla CSV (separador ";") exportada del sistema anterior.
//
// Uso: go run ./cmd/seed_series series.csv [salida.sql]
// Sin salida escribe en stdout. Columnas: empresa;codigo;tipo;siguiente;activa
// La planilla puede venir en UTF-8 o en ISO-8859-1 (export de Excel).
package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type seriesRow struct {
	id         string
	companyID  string
	code       string
	docType    string
	nextNumber int64
	active     bool
}

var docTypes = map[string]bool{"FT": true, "FR": true, "NC": true, "ND": true}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "uso: seed_series series.csv [salida.sql]")
		os.Exit(2)
	}
	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}

	rows, err := parseSeries(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if len(os.Args) > 2 {
		f, err := os.Create(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := writeSQL(out, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Generadas %d series\n", len(rows))
}

// parseSeries lee la planilla. Si no es UTF-8 válido se decodifica como ISO-8859-1.
func parseSeries(raw []byte) ([]seriesRow, error) {
	var src io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		src = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}
	r := csv.NewReader(src)
	r.Comma = ';'
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("planilla vacía")
	}

	seen := make(map[string]int)
	rows := make([]seriesRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) < 4 {
			return nil, fmt.Errorf("línea %d: se esperaban al menos 4 columnas", line)
		}
		row := seriesRow{
			companyID: strings.TrimSpace(rec[0]),
			code:      strings.TrimSpace(rec[1]),
			docType:   strings.ToUpper(strings.TrimSpace(rec[2])),
			active:    true,
		}
		if row.companyID == "" || row.code == "" {
			return nil, fmt.Errorf("línea %d: empresa y código son obligatorios", line)
		}
		if !docTypes[row.docType] {
			return nil, fmt.Errorf("línea %d: tipo de documento %q desconocido", line, row.docType)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(rec[3]), 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("línea %d: siguiente número inválido %q", line, rec[3])
		}
		row.nextNumber = n
		if len(rec) > 4 {
			switch strings.ToLower(strings.TrimSpace(rec[4])) {
			case "", "si", "sí", "s", "1", "true":
			case "no", "n", "0", "false":
				row.active = false
			default:
				return nil, fmt.Errorf("línea %d: valor de activa inválido %q", line, rec[4])
			}
		}

		natural := row.companyID + "/" + row.code + "/" + row.docType
		if prev, ok := seen[natural]; ok {
			return nil, fmt.Errorf("línea %d: serie repetida (ya definida en la línea %d)", line, prev)
		}
		seen[natural] = line
		// Mismo id en cada ejecución: el script se puede volver a aplicar.
		row.id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("efactura-agt:series:"+natural)).String()
		rows = append(rows, row)
	}
	return rows, nil
}

func writeSQL(w io.Writer, rows []seriesRow) error {
	var b strings.Builder
	b.WriteString("-- Series de numeración\n")
	b.WriteString("-- Generado por cmd/seed_series\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "INSERT INTO series (id, company_id, code, doc_type, next_number, active)\n")
		fmt.Fprintf(&b, "VALUES ('%s', '%s', '%s', '%s', %d, %t)\n",
			r.id, escapeSQL(r.companyID), escapeSQL(r.code), r.docType, r.nextNumber, r.active)
		// next_number nunca retrocede: la serie pudo haber emitido desde la carga anterior.
		b.WriteString("ON CONFLICT (company_id, code, doc_type) DO UPDATE SET\n")
		b.WriteString("    next_number = GREATEST(series.next_number, EXCLUDED.next_number),\n")
		b.WriteString("    active = EXCLUDED.active,\n")
		b.WriteString("    updated_at = NOW();\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
