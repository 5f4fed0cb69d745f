// Package export writes the leads of a search session to a file or HTTP
// response in CSV or XLSX form.
package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/leadmap/internal/leads"
	"github.com/sells-group/leadmap/internal/model"
)

// ErrNothingToExport is returned when an export is requested before any lead
// has been collected. Callers show it as a notice, not a failure.
var ErrNothingToExport = errors.New("no leads to export yet, run a search first")

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DefaultFilename is used when no output path is given.
const DefaultFilename = "leads.csv"

const sheetName = "Leads"

// Source is the subset of a lead store an export reads.
type Source interface {
	Len() int
	Leads() []model.Lead
}

// Exporter writes lead snapshots.
type Exporter struct {
	excelBOM bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithExcelBOM prefixes CSV output with a UTF-8 byte order mark so
// spreadsheet programs detect the encoding.
func WithExcelBOM(enabled bool) Option {
	return func(e *Exporter) { e.excelBOM = enabled }
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ParseFormat maps a name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv", "":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// Export writes a snapshot of src to w. An empty source yields
// ErrNothingToExport and nothing is written.
func (e *Exporter) Export(ctx context.Context, src Source, w io.Writer, format Format) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "export: context")
	}

	rows := src.Leads()
	if len(rows) == 0 {
		return ErrNothingToExport
	}

	switch format {
	case FormatCSV, "":
		return e.writeCSV(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// ExportFile writes src to path, choosing the format from the file
// extension. An empty path writes DefaultFilename in the working directory.
func (e *Exporter) ExportFile(ctx context.Context, src Source, path string) (string, error) {
	if path == "" {
		path = DefaultFilename
	}
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", err
	}

	// Check before creating the file so an empty session leaves nothing behind.
	if src.Len() == 0 {
		return "", ErrNothingToExport
	}

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "export: create %s", path)
	}

	if err := e.Export(ctx, src, f, format); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", path)
	}

	zap.L().Info("export: wrote leads",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("leads", src.Len()),
	)
	return path, nil
}

// ContentType returns the HTTP media type for format.
func ContentType(format Format) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename returns the download filename for format.
func Filename(format Format) string {
	switch format {
	case FormatXLSX:
		return "leads.xlsx"
	default:
		return DefaultFilename
	}
}

func (e *Exporter) writeCSV(w io.Writer, rows []model.Lead) error {
	body := leads.RenderCSV(rows)

	if !e.excelBOM {
		if _, err := io.WriteString(w, body); err != nil {
			return eris.Wrap(err, "export: write csv")
		}
		return nil
	}

	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	if _, err := io.WriteString(tw, body); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	if err := tw.Close(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

func writeXLSX(w io.Writer, rows []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range leads.Header {
		header.AddCell().SetString(h)
	}

	for _, l := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(l.Name)
		row.AddCell().SetString(l.Address)
		row.AddCell().SetString(l.Phone)
		row.AddCell().SetString(l.Rating)
		row.AddCell().SetString(l.Reviews)

		link := row.AddCell()
		if formula := leads.HyperlinkFormula(l.MapsURL); formula != "" {
			link.SetFormula(strings.TrimPrefix(formula, "="))
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
