package diffexp

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/carbocation/pseudobulk"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Plotted p values are floored so a p of zero still lands on the chart.
const minPlottedP = 1e-300

// VolcanoPlot renders log2 fold change against -log10 p for a Welch test
// result table, coloring features whose q_value falls below alpha.
func VolcanoPlot(filename string, de *pseudobulk.Table, alpha float64) error {
	logFC, err := de.ValueColumn(Log2FCField)
	if err != nil {
		return err
	}
	p, err := de.ValueColumn(PValueField)
	if err != nil {
		return err
	}
	q, err := de.ValueColumn(QValueField)
	if err != nil {
		return err
	}
	if de.NRows() == 0 {
		return pseudobulk.EmptyInputError{Operation: "volcano plot"}
	}

	var sigX, sigY, restX, restY []float64
	for i := range logFC {
		y := -math.Log10(math.Max(p[i], minPlottedP))
		if q[i] < alpha {
			sigX = append(sigX, logFC[i])
			sigY = append(sigY, y)
			continue
		}
		restX = append(restX, logFC[i])
		restY = append(restY, y)
	}

	series := make([]chart.Series, 0, 2)
	if len(restX) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    "not significant",
			Style:   scatterStyle(chart.ColorAlternateGray),
			XValues: restX,
			YValues: restY,
		})
	}
	if len(sigX) > 0 {
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("q < %g", alpha),
			Style:   scatterStyle(chart.ColorRed),
			XValues: sigX,
			YValues: sigY,
		})
	}

	graph := chart.Chart{
		Width:  800,
		Height: 600,
		XAxis:  chart.XAxis{Name: "log2 fold change"},
		YAxis:  chart.YAxis{Name: "-log10 p"},
		Series: series,
	}

	return renderPNG(filename, graph)
}

// MAPlot renders log2 fold change against log-scale mean expression.
func MAPlot(filename string, de *pseudobulk.Table) error {
	logFC, err := de.ValueColumn(Log2FCField)
	if err != nil {
		return err
	}
	baseMean, err := de.ValueColumn(BaseMean)
	if err != nil {
		return err
	}
	if de.NRows() == 0 {
		return pseudobulk.EmptyInputError{Operation: "MA plot"}
	}

	x := make([]float64, len(baseMean))
	for i, v := range baseMean {
		x[i] = math.Log2(v + 1)
	}

	graph := chart.Chart{
		Width:  800,
		Height: 600,
		XAxis:  chart.XAxis{Name: "log2 mean expression"},
		YAxis:  chart.YAxis{Name: "log2 fold change"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Style:   scatterStyle(chart.ColorBlue),
				XValues: x,
				YValues: logFC,
			},
		},
	}

	return renderPNG(filename, graph)
}

// PCAPlot renders the first two principal component scores.
func PCAPlot(filename string, res *PCAResult) error {
	pc1, err := res.Scores.ValueColumn("pc1")
	if err != nil {
		return err
	}
	pc2, err := res.Scores.ValueColumn("pc2")
	if err != nil {
		return err
	}

	graph := chart.Chart{
		Width:  600,
		Height: 600,
		XAxis:  chart.XAxis{Name: fmt.Sprintf("PC1 (%.1f%%)", 100*res.ExplainedVariance[0])},
		YAxis:  chart.YAxis{Name: fmt.Sprintf("PC2 (%.1f%%)", 100*res.ExplainedVariance[1])},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Style:   scatterStyle(chart.ColorBlue),
				XValues: pc1,
				YValues: pc2,
			},
		},
	}

	return renderPNG(filename, graph)
}

// ScreePlot renders the fraction of variance explained per component.
func ScreePlot(filename string, res *PCAResult) error {
	x := make([]float64, len(res.ExplainedVariance))
	for i := range x {
		x[i] = float64(i + 1)
	}

	graph := chart.Chart{
		Width:  512,
		Height: 256,
		XAxis:  chart.XAxis{Name: "component"},
		YAxis:  chart.YAxis{Name: "variance explained"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: x,
				YValues: res.ExplainedVariance,
			},
		},
	}

	return renderPNG(filename, graph)
}

func scatterStyle(c drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    c,
	}
}

func renderPNG(filename string, graph chart.Chart) error {
	// Render to a byte buffer
	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return err
	}

	outFile, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer outFile.Close()

	if _, err := buffer.WriteTo(outFile); err != nil {
		return err
	}

	return nil
}
