package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

const timeLayout = "2006-01-02 15:04 MST"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s  %s\n", labelStyle.Render(fmt.Sprintf("  %-12s", label)), value)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", humanize.Time(t), t.Local().Format(timeLayout))
}

func printSession(w io.Writer, v service.SessionView) {
	fmt.Fprintln(w, headingStyle.Render("Wallet session"))
	row(w, "State:", v.State)
	if v.Account != "" {
		row(w, "Account:", v.Account)
	}
	if v.ChainID != 0 {
		row(w, "Chain:", fmt.Sprintf("%d", v.ChainID))
	}
	if v.Error != "" {
		row(w, "Error:", errorStyle.Render(v.Error))
	}
	row(w, "Since:", when(v.UpdatedAt))
}

func printShipmentList(w io.Writer, list []domain.Shipment) {
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Shipments (%d)", len(list))))
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  (none)"))
		return
	}
	for _, s := range list {
		status := s.Status.Label()
		if s.NeedsAlert() {
			status = alertStyle.Render(status)
		}
		fmt.Fprintf(w, "  %-14s %-10s %-12s %-22s %s\n", s.ID, tag(s.RFIDTag), status, position(s.Location), dimStyle.Render(humanize.Time(s.LastUpdate)))
	}
}

func printShipment(w io.Writer, s domain.Shipment) {
	v := service.NewShipmentView(s)
	fmt.Fprintln(w, headingStyle.Render("Shipment "+v.ID))
	status := v.StatusLabel
	if v.NeedsAlert {
		status = alertStyle.Render(status)
	}
	row(w, "RFID tag:", tag(v.RFIDTag))
	row(w, "Status:", status)
	row(w, "Position:", position(s.Location))
	if s.DeliveryPoint != nil {
		row(w, "Delivery:", position(s.DeliveryPoint))
	}
	row(w, "Updated:", when(v.LastUpdate))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Timeline (%d)", len(v.Timeline))))
	if len(v.Timeline) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  (none)"))
		return
	}
	for i, ev := range v.Timeline {
		line := fmt.Sprintf("  %d. %s  %-10s", i+1, ev.Timestamp.Local().Format(timeLayout), ev.Label)
		if ev.Location != nil {
			line += "  @ " + position(ev.Location)
		}
		if ev.Details != "" {
			line += "  " + ev.Details
		}
		fmt.Fprintln(w, line)
	}
}

func printStats(w io.Writer, stats domain.DashboardStats) {
	fmt.Fprintln(w, headingStyle.Render("Dashboard"))
	row(w, "Shipments:", humanize.Comma(int64(stats.Total)))
	row(w, "In transit:", humanize.Comma(int64(stats.InTransit)))
	row(w, "Delivered:", humanize.Comma(int64(stats.Delivered)))
	alerts := humanize.Comma(int64(stats.Alerts))
	if stats.Alerts > 0 {
		alerts = alertStyle.Render(alerts)
	}
	row(w, "Alerts:", alerts)
	row(w, "Delivery:", fmt.Sprintf("%.0f%%", stats.DeliveryRate*100))
}

func tag(rfid string) string {
	if rfid == "" {
		return "-"
	}
	return rfid
}

func position(l *domain.Location) string {
	if l == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f, %.4f", l.Lat, l.Lng)
}

// refresh retries while a concurrent refresh, such as the one triggered by
// connecting, supersedes ours
func refresh(ctx context.Context, t *service.Tracker) ([]domain.Shipment, error) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var list []domain.Shipment
		list, err = t.Refresh(ctx)
		if err == nil {
			return list, nil
		}
		if !stderrors.Is(err, store.ErrRefreshSuperseded) {
			return nil, err
		}
	}
	return nil, err
}
