package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardWindows = []float64{1, 3, 6, 12}

type windowOption struct {
	Hours    float64
	Label    string
	Selected bool
}

type dashboardData struct {
	Title                string
	PollMs               int64
	DefaultWindow        float64
	Windows              []windowOption
	TemperatureThreshold float64
	AmbientThreshold     float64
}

type dashboard struct {
	page []byte
}

// newDashboard renders the page once; its content only depends on config.
func newDashboard(cfg Config, q Querier) (*dashboard, error) {
	errFactory := errors.New()

	tmpl, err := template.New("dashboard").Parse(dashboardHTML)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData("dashboard_template")
	}

	title := cfg.Title
	if title == "" {
		title = "Sensor Dashboard"
	}

	thresholds := q.Thresholds()
	data := dashboardData{
		Title:                title,
		PollMs:               cfg.PollInterval.Milliseconds(),
		DefaultWindow:        hours(q.DefaultWindow()),
		Windows:              windowOptions(q.DefaultWindow(), q.Retention()),
		TemperatureThreshold: thresholds.Temperature,
		AmbientThreshold:     thresholds.Ambient,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData("dashboard_render")
	}

	return &dashboard{page: buf.Bytes()}, nil
}

func (d *dashboard) render(w io.Writer) error {
	_, err := w.Write(d.page)
	return err
}

// windowOptions lists the selectable windows up to the retention, always
// including the default.
func windowOptions(def, retention time.Duration) []windowOption {
	defHours := hours(def)
	maxHours := hours(retention)

	set := map[float64]bool{defHours: true}
	for _, h := range dashboardWindows {
		if h <= maxHours {
			set[h] = true
		}
	}

	list := make([]float64, 0, len(set))
	for h := range set {
		list = append(list, h)
	}
	sort.Float64s(list)

	opts := make([]windowOption, 0, len(list))
	for _, h := range list {
		opts = append(opts, windowOption{
			Hours:    h,
			Label:    windowLabel(h),
			Selected: h == defHours,
		})
	}
	return opts
}

func hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

func windowLabel(h float64) string {
	switch {
	case h == 1:
		return "Last 1 Hour"
	case h < 1:
		return "Last " + formatFloat(h*60) + " Minutes"
	default:
		return "Last " + formatFloat(h) + " Hours"
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
