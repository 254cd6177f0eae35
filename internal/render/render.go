// Package render encodes public document models into bytes: decisions as
// PDF, activity reports as CSV.
package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	pdfutil "github.com/dharsanguruparan/amenagements/internal/pdf"
)

// Format is an output format.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// MimeType returns the content type of f.
func (f Format) MimeType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Error is returned by Encode. Every rendering failure is considered
// transient: callers redeliver the message later.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("render %s: %v", e.Format, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether redelivering the message may succeed.
func (e *Error) Retryable() bool { return true }

// AmenagementLigne is one accommodation printed on a decision.
type AmenagementLigne struct {
	Categorie string
	Libelle   string
}

// DecisionDocument is the public model of an exam-accommodation decision.
type DecisionDocument struct {
	Numero         int64
	Annee          int
	Beneficiaire   string
	NumeroEtudiant string
	Amenagements   []AmenagementLigne
	DateEdition    time.Time
}

// Table is the public model of a CSV export.
type Table struct {
	Header []string
	Rows   [][]string
}

// Renderer encodes documents.
type Renderer struct{}

// New constructs a Renderer.
func New() *Renderer { return &Renderer{} }

// Encode renders m in format f.
func (r *Renderer) Encode(m any, f Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatPDF:
		doc, ok := m.(DecisionDocument)
		if !ok {
			return nil, &Error{Format: f, Err: fmt.Errorf("unsupported model %T", m)}
		}
		data, err = decisionPDF(doc)
	case FormatCSV:
		table, ok := m.(Table)
		if !ok {
			return nil, &Error{Format: f, Err: fmt.Errorf("unsupported model %T", m)}
		}
		data, err = tableCSV(table)
	default:
		err = fmt.Errorf("unknown format %q", f)
	}
	if err != nil {
		return nil, &Error{Format: f, Err: err}
	}
	return data, nil
}

func decisionPDF(doc DecisionDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Decision d'amenagement d'examens %d", doc.Annee), true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr("Décision d'aménagement des examens"), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Ln(4)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Année universitaire %d-%d", doc.Annee, doc.Annee+1)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr("Bénéficiaire : "+doc.Beneficiaire), "", 1, "L", false, 0, "")
	if doc.NumeroEtudiant != "" {
		pdf.CellFormat(0, 7, tr("N° étudiant : "+doc.NumeroEtudiant), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr("Aménagements accordés"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if len(doc.Amenagements) == 0 {
		pdf.CellFormat(0, 7, tr("Aucun aménagement."), "", 1, "L", false, 0, "")
	}
	for _, a := range doc.Amenagements {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("- %s : %s", a.Categorie, a.Libelle)), "", "L", false)
	}
	pdf.Ln(8)
	pdf.CellFormat(0, 7, tr("Édité le "+doc.DateEdition.Format("02/01/2006")), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if _, err := pdfutil.Inspect(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("verify pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func tableCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), len(t.Header))
		}
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}
