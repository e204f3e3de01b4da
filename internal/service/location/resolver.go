package location

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"

	"github.com/go-resty/resty/v2"
)

// gpsResponse is the body of the GPS service. Fields stay nil when the
// receiver has no fix yet.
type gpsResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Resolver asks the GPS service for the current position.
type Resolver struct {
	client      *resty.Client
	endpoint    string
	attempts    int
	retryDelay  time.Duration
	mapLinkBase string
	logger      *logger.Logger
}

func NewResolver(cfg *config.Config, logger *logger.Logger) *Resolver {
	client := resty.New().
		SetTimeout(cfg.GPSTimeout).
		SetHeader("Accept", "application/json")

	attempts := cfg.GPSRetries
	if attempts < 1 {
		attempts = 1
	}
	return &Resolver{
		client:      client,
		endpoint:    cfg.GPSEndpoint,
		attempts:    attempts,
		retryDelay:  cfg.GPSRetryDelay,
		mapLinkBase: cfg.MapLinkBase,
		logger:      logger,
	}
}

// Resolve tries the GPS service up to the configured number of attempts with
// a fixed delay between them. It returns false when every attempt failed or
// ctx was cancelled.
func (r *Resolver) Resolve(ctx context.Context) (*model.GeoFix, bool) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if fix, ok := r.try(ctx, attempt); ok {
			return fix, true
		}
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			r.logger.Warning("Location lookup cancelled: %v", ctx.Err())
			return nil, false
		case <-time.After(r.retryDelay):
		}
	}

	r.logger.Error("❌ Failed to get GPS location after %d attempts", r.attempts)
	return nil, false
}

func (r *Resolver) try(ctx context.Context, attempt int) (*model.GeoFix, bool) {
	resp, err := r.client.R().SetContext(ctx).Get(r.endpoint)
	if err != nil {
		r.logger.Warning("GPS request failed (attempt %d/%d): %v", attempt, r.attempts, err)
		return nil, false
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		r.logger.Warning("GPS not ready (attempt %d/%d)", attempt, r.attempts)
		return nil, false
	default:
		r.logger.Warning("GPS service returned status %d (attempt %d/%d)", resp.StatusCode(), attempt, r.attempts)
		return nil, false
	}

	var body gpsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		r.logger.Warning("Malformed GPS response (attempt %d/%d): %v", attempt, r.attempts, err)
		return nil, false
	}
	if body.Latitude == nil || body.Longitude == nil {
		r.logger.Warning("GPS response without coordinates (attempt %d/%d)", attempt, r.attempts)
		return nil, false
	}

	fix := model.NewGeoFix(*body.Latitude, *body.Longitude, r.mapLinkBase)
	r.logger.Info("📍 GPS location: %s, %s", model.FormatCoordinate(fix.Latitude), model.FormatCoordinate(fix.Longitude))
	return &fix, true
}
