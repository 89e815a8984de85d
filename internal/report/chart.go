// Package report 渲染回测结果的可视化页面。
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"orb/internal/backtest"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorEquity      = "#3b82f6"
	colorDrawdown    = "#f87171"

	chartWidthPx  = 1280
	chartHeightPx = 480
)

// WriteEquityHTML 把资金曲线与回撤渲染为单个 HTML 文件，返回文件路径。
func WriteEquityHTML(dir string, run backtest.Run, equity []backtest.EquityPoint) (string, error) {
	if len(equity) == 0 {
		return "", fmt.Errorf("run %s has no equity points", run.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	xAxis := make([]string, 0, len(equity))
	equitySeries := make([]opts.LineData, 0, len(equity))
	drawdownSeries := make([]opts.LineData, 0, len(equity))
	for _, p := range equity {
		xAxis = append(xAxis, time.UnixMilli(p.TS).UTC().Format("2006-01-02"))
		equitySeries = append(equitySeries, opts.LineData{Value: p.Equity})
		drawdownSeries = append(drawdownSeries, opts.LineData{Value: -p.Drawdown * 100})
	}

	init := opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", chartHeightPx),
		BackgroundColor: colorBackground,
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s equity", run.Symbol, run.Timeframe),
			Subtitle:   fmt.Sprintf("net=%.2f trades=%d win=%.0f%%", run.Stats.TotalNetPnL, run.Stats.Trades, run.Stats.WinRate*100),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetXAxis(xAxis).
		AddSeries("equity", equitySeries,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("drawdown %", drawdownSeries,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	path := filepath.Join(dir, fmt.Sprintf("equity_%s.html", run.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", err
	}
	return path, nil
}
