package model

import (
	"fmt"
	"strconv"
	"time"
)

// Scores maps a label to its confidence in [0,1]. Multi-label models do not
// sum to 1.
type Scores map[string]float64

// HazardVerdict is the decision derived from Scores. The zero value means no
// hazard.
type HazardVerdict struct {
	Kind  string  `json:"kind,omitempty"`  // "Normal", "Wild"
	Label string  `json:"label,omitempty"` // model label that crossed its threshold
	Score float64 `json:"score,omitempty"`
}

// NoHazard is the empty verdict.
var NoHazard = HazardVerdict{}

// IsHazard reports whether the verdict names a hazard.
func (v HazardVerdict) IsHazard() bool {
	return v.Kind != ""
}

func (v HazardVerdict) String() string {
	if !v.IsHazard() {
		return "none"
	}
	return v.Kind
}

// SensorReading is one integer value read from the gas sensor process.
type SensorReading struct {
	Value  int       `json:"value"`
	ReadAt time.Time `json:"read_at"`
}

// GeoFix is a resolved position. Use NewGeoFix so both coordinates and the
// link are always populated together.
type GeoFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	MapLink   string  `json:"map_link"`
}

// NewGeoFix builds a fix with its map link, e.g. base "https://maps.google.com/?q=".
func NewGeoFix(lat, lon float64, mapLinkBase string) GeoFix {
	return GeoFix{
		Latitude:  lat,
		Longitude: lon,
		MapLink:   fmt.Sprintf("%s%s,%s", mapLinkBase, FormatCoordinate(lat), FormatCoordinate(lon)),
	}
}

// FormatCoordinate renders a coordinate without trailing zeros.
func FormatCoordinate(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// AlertEvent is one confirmed escalation. It is built once and not modified
// afterwards.
type AlertEvent struct {
	ID        string         `json:"id"`
	Verdict   HazardVerdict  `json:"verdict"`
	Reading   *SensorReading `json:"reading,omitempty"`
	Location  *GeoFix        `json:"location,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
}
