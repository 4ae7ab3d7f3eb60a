package history

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"sympto/internal/models"
)

// TrendChart plots each field over time, one series per field. Assessments that did not record
// a field leave a gap in that series.
func TrendChart(list []models.Assessment, fields []models.Field, catalog *models.Catalog) *charts.Line {
	if len(fields) == 0 {
		fields = models.LabFields
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Lab Results Over Time",
			Subtitle: "Values from your submitted assessments",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	ordered := chronological(list)
	for _, f := range fields {
		items := make([]opts.LineData, 0, len(ordered))
		for _, a := range ordered {
			if v, ok := a.Get(f); ok {
				items = append(items, opts.LineData{Value: []interface{}{a.CreatedAt, v}})
			}
		}
		name := catalog.Label(f)
		if info, ok := catalog.Info(f); ok && info.Unit != "" {
			name += " (" + info.Unit + ")"
		}
		line.AddSeries(name, items).SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	}
	return line
}
