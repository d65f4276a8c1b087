package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/errwatch/internal/model"
)

const chartHeight = 8

func (p *DashboardPage) renderChart(width int) string {
	return sectionStyle.Width(width).Render(renderBucketChart(p.buckets, width-4, p.cfg))
}

// renderBucketChart draws one bar per bucket with a min/max/avg summary line.
func renderBucketChart(buckets []model.Bucket, width int, cfg Config) string {
	title := fmt.Sprintf("Errors per %s, last %s", shortDuration(cfg.Bucket), shortDuration(cfg.Window))
	if len(buckets) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			chartTitleStyle.Render(title),
			helpStyle.Render("No data available"))
	}

	var total, peak int64
	var rtSum float64
	for _, b := range buckets {
		total += b.ErrorCount
		peak = max(peak, b.ErrorCount)
		rtSum += b.AvgResponseTime * float64(b.ErrorCount)
	}
	avgRT := 0.0
	if total > 0 {
		avgRT = rtSum / float64(total)
	}
	stats := fmt.Sprintf("Total: %d | Peak: %d | Avg RT: %.1fms", total, peak, avgRT)
	spacer := width - len(title) - len(stats)
	header := title
	if spacer > 0 {
		header = title + strings.Repeat(" ", spacer) + stats
	}

	n := len(buckets)
	barWidth := (width - (n - 1)) / n
	if barWidth < 1 {
		barWidth = 1
	}
	bc := barchart.New(width, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, b := range buckets {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{
				{Name: "errors", Value: float64(b.ErrorCount), Style: barStyle},
			},
		})
	}
	bc.Draw()

	first := buckets[0].Start.In(cfg.Location).Format("15:04")
	last := buckets[n-1].Start.Add(cfg.Bucket).In(cfg.Location).Format("15:04")
	axis := first
	if gap := width - len(first) - len(last); gap > 0 {
		axis += strings.Repeat(" ", gap)
	}
	axis += last

	return lipgloss.JoinVertical(lipgloss.Left,
		chartTitleStyle.Render(header),
		bc.View(),
		helpStyle.Render(axis))
}

// shortDuration renders 1h0m0s as 1h and 5m0s as 5m.
func shortDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
