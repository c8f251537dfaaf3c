package render

import (
	"fmt"
	"io"

	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/printer"
)

// Thresholds are in hours behind the sample time.
type Thresholds struct {
	Warn float64
	Crit float64
}

// Table prints the latest lag of every mirror of one repository.
func Table(w io.Writer, p *printer.ColorPrinter, fqrn string, s lag.Series, th Thresholds) error {
	if _, err := fmt.Fprintf(w, "%s\n", fqrn); err != nil {
		return err
	}

	t := logger.CreateTable(w, []string{"Mirror", "Last sample (UTC)", "Lag (h)", "Samples"})

	latest := s.Latest()
	for _, mirror := range s.Mirrors() {
		pt := latest[mirror]
		lagCell := p.Lag(pt.LagHours, th.Warn, th.Crit, "%.2f", pt.LagHours)
		row := []string{mirror, pt.Time.Format("2006-01-02 15:04"), lagCell, fmt.Sprint(len(s[mirror]))}
		if err := t.Append(row); err != nil {
			return fmt.Errorf("an error occurred while appending to the table: %w", err)
		}
	}

	if err := t.Render(); err != nil {
		return fmt.Errorf("an error occurred while rendering the table: %w", err)
	}
	return nil
}
