// Package render turns lag series into PNG charts and console tables.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/MrSnakeDoc/s1lag/internal/lag"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
)

// FileName is the chart file name for fqrn; anything outside [A-Za-z0-9._-] becomes '_'.
func FileName(fqrn string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, fqrn)
	clean = strings.Trim(clean, ".")
	if clean == "" {
		clean = "_"
	}
	return clean + ".png"
}

// Chart writes one line per mirror, sample time on x and lag hours on y.
func Chart(fqrn string, s lag.Series, path string) error {
	p := plot.New()
	p.Title.Text = fqrn + " Stratum-1 lag"
	p.X.Label.Text = "sample time (UTC)"
	p.Y.Label.Text = "lag (hours)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for i, mirror := range s.Mirrors() {
		pts := s[mirror]
		xys := make(plotter.XYs, len(pts))
		for j, pt := range pts {
			xys[j].X = float64(pt.Time.Unix())
			xys[j].Y = pt.LagHours
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("%s @ %s: %w", fqrn, mirror, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)

		dots, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("%s @ %s: %w", fqrn, mirror, err)
		}
		dots.GlyphStyle.Color = plotutil.Color(i)
		dots.GlyphStyle.Radius = vg.Points(1.5)

		p.Add(line, dots)
		p.Legend.Add(mirror, line)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return p.Save(chartWidth, chartHeight, path)
}

// ChartInDir renders into dir/FileName(fqrn) and returns the path.
func ChartInDir(dir, fqrn string, s lag.Series) (string, error) {
	path := filepath.Join(dir, FileName(fqrn))
	return path, Chart(fqrn, s, path)
}
