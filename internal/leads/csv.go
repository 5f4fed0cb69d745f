package leads

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadmap/internal/model"
)

// Header is the fixed first row of every export.
var Header = []string{"Name", "Address", "Phone", "Rating", "Reviews", "Google Maps"}

const rowSeparator = "\r\n"

// CSV renders the header plus one row per stored lead. Rows are separated by
// CRLF with no trailing terminator.
func (s *Store) CSV() string {
	return RenderCSV(s.Leads())
}

// RenderCSV renders the header plus one row per lead in the given order.
// Only lead cells are escaped; the header is written as is.
func RenderCSV(leads []model.Lead) string {
	rows := make([]string, 0, len(leads)+1)
	rows = append(rows, strings.Join(Header, ","))
	for _, l := range leads {
		rows = append(rows, joinRow(Row(l)))
	}
	return strings.Join(rows, rowSeparator)
}

// WriteCSV writes CSV() to w.
func (s *Store) WriteCSV(w io.Writer) error {
	if _, err := io.WriteString(w, s.CSV()); err != nil {
		return eris.Wrap(err, "leads: write csv")
	}
	return nil
}

// Row returns the unescaped cell values for one lead in Header order.
func Row(l model.Lead) []string {
	return []string{
		l.Name,
		l.Address,
		l.Phone,
		l.Rating,
		l.Reviews,
		HyperlinkFormula(l.MapsURL),
	}
}

// HyperlinkFormula wraps url in a spreadsheet HYPERLINK formula that
// displays "Maps". An empty url yields an empty cell.
func HyperlinkFormula(url string) string {
	if url == "" {
		return ""
	}
	return `=HYPERLINK("` + url + `","Maps")`
}

var newlineNormalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// EscapeCell normalizes line breaks to LF and quotes the value when it
// contains a double quote, comma, space, or newline.
func EscapeCell(v string) string {
	v = newlineNormalizer.Replace(v)
	if strings.ContainsAny(v, "\" ,\n") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

func joinRow(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = EscapeCell(c)
	}
	return strings.Join(escaped, ",")
}
