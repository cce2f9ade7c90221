package report

import (
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/upvigil/upvigil/internal/timeline"
)

// generateDowntimeChart renders counted downtime hours per day as a bar
// chart. Excluded (crossed) downtime is not drawn; it stays visible in the
// text summary.
func (g *Generator) generateDowntimeChart(outputDir string, tl timeline.Timeline) error {
	if len(tl.Days) == 0 {
		return nil
	}

	values := make([]chart.Value, 0, len(tl.Days))
	for _, day := range tl.Days {
		values = append(values, chart.Value{
			Label: day.Label,
			Value: day.CountedSeconds / 3600,
		})
	}

	graph := chart.BarChart{
		Title: "Downtime Hours by Day",
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    100 + len(values)*30,
		Height:   400,
		Bars:     values,
		BarWidth: 20,
		YAxis: chart.YAxis{
			Name: "Hours down",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 24,
			},
		},
	}

	filename := filepath.Join(outputDir, "downtime_by_day.png")
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
