package render

import (
	"encoding/json"
	"io"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// JSON writes the report as indented JSON.
func JSON(w io.Writer, report domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}
