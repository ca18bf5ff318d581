package diag

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// PlotEnergy draws field, kinetic and total energy against time.
func PlotEnergy(h *History, path string) error {
	if h.Len() == 0 {
		return fmt.Errorf("diag: no energy samples to plot")
	}
	p := plot.New()
	p.Title.Text = "Energy"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "W (J/m^2)"

	field := make(plotter.XYs, h.Len())
	kinetic := make(plotter.XYs, h.Len())
	total := make(plotter.XYs, h.Len())
	for i, s := range h.Samples {
		field[i] = plotter.XY{X: s.Time, Y: s.Field}
		kinetic[i] = plotter.XY{X: s.Time, Y: s.Kinetic}
		total[i] = plotter.XY{X: s.Time, Y: s.Total()}
	}
	if err := plotutil.AddLines(p, "field", field, "kinetic", kinetic, "total", total); err != nil {
		return fmt.Errorf("diag: energy lines: %w", err)
	}
	return save(p, path)
}

// PlotResidual draws a residual history on a log scale. Zero entries are
// skipped because the log axis cannot show them.
func PlotResidual(residual []float64, path string) error {
	pts := make(plotter.XYs, 0, len(residual))
	for i, r := range residual {
		if r > 0 {
			pts = append(pts, plotter.XY{X: float64(i), Y: r})
		}
	}
	if len(pts) == 0 {
		return fmt.Errorf("diag: no positive residuals to plot")
	}

	p := plot.New()
	p.Title.Text = "Nonlinear residual"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "norm"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	if err := plotutil.AddLinePoints(p, "residual", pts); err != nil {
		return fmt.Errorf("diag: residual line: %w", err)
	}
	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("diag: create plot directory: %w", err)
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("diag: save %s: %w", path, err)
	}
	return nil
}
