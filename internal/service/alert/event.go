package alert

import (
	"fmt"
	"strings"
	"time"

	"firewatch/internal/model"

	"github.com/google/uuid"
)

// Title is the notification title of every fire alert.
const Title = "Fire Alert!"

// LocationUnavailable is appended when no GPS fix could be obtained.
const LocationUnavailable = "⚠️ Location unavailable."

// NewEvent builds the alert for a confirmed hazard. reading is nil when the
// gas sensor could not be consulted; fix is nil when no location is known.
func NewEvent(verdict model.HazardVerdict, reading *model.SensorReading, fix *model.GeoFix) *model.AlertEvent {
	var b strings.Builder
	if reading != nil {
		b.WriteString("🔥 Fire + gas levels detected!\n")
	} else {
		b.WriteString("🔥 Fire detected! Gas sensor unavailable.\n")
	}
	fmt.Fprintf(&b, "Type: %s fire (confidence %.2f)\n", verdict.Kind, verdict.Score)
	if reading != nil {
		fmt.Fprintf(&b, "Gas level: %d\n", reading.Value)
	}

	if fix != nil {
		fmt.Fprintf(&b, "Latitude: %s\nLongitude: %s\nMap: %s",
			model.FormatCoordinate(fix.Latitude), model.FormatCoordinate(fix.Longitude), fix.MapLink)
	} else {
		b.WriteString(LocationUnavailable)
	}

	return &model.AlertEvent{
		ID:        uuid.NewString(),
		Verdict:   verdict,
		Reading:   reading,
		Location:  fix,
		Title:     Title,
		Message:   b.String(),
		CreatedAt: time.Now(),
	}
}
