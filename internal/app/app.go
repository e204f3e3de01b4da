package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/route"
	"firewatch/internal/service"
	"firewatch/internal/service/ai"
	"firewatch/internal/service/alert"
	"firewatch/internal/service/camera"
	"firewatch/internal/service/location"
	"firewatch/internal/service/sensor"
	"firewatch/internal/service/storage"
	"firewatch/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	source        *camera.Source
	filter        *ai.ChangeFilter
	classifier    *ai.Classifier
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	mqtt          *alert.MQTT
	manager       *service.Manager
}

// New opens the stream and loads the model. Either failing is fatal.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*App, error) {
	capture, err := camera.Open(cfg.StreamSource)
	if err != nil {
		return nil, err
	}

	engine, err := ai.NewEngine(ctx, cfg, logger)
	if err != nil {
		capture.Close()
		return nil, err
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		source:     camera.NewSource(capture, cfg, logger.With("component", "camera")),
		filter:     ai.NewChangeFilter(cfg),
		classifier: ai.NewClassifier(engine, cfg, logger.With("component", "classifier")),
		hubService: websocket.NewHubService(logger.With("component", "hub")),
	}

	if cfg.SaveFrames {
		a.bufferService = storage.NewBufferService(cfg, logger.With("component", "storage"))
		a.classifier.SetFrameSaver(a.bufferService)
	}

	dispatcher := alert.NewDispatcher(a.notifiers(), logger.With("component", "alert"))
	a.manager = service.NewManager(
		a.source,
		a.filter,
		a.classifier,
		sensor.NewSupervisor(cfg, logger.With("component", "sensor")),
		location.NewResolver(cfg, logger.With("component", "location")),
		dispatcher,
		cfg,
		logger,
	)
	a.manager.SetObserver(a.hubService)

	return a, nil
}

func (a *App) notifiers() alert.Notifier {
	notifiers := alert.Multi{a.hubService}
	remote := false

	if a.config.PushbulletToken != "" {
		notifiers = append(notifiers, alert.NewPushbullet(a.config.PushbulletToken, a.config.PushbulletURL))
		remote = true
	}
	if a.config.MQTTBroker != "" {
		a.mqtt = alert.NewMQTT(a.config.MQTTBroker, a.config.MQTTTopic, a.config.MQTTClientID,
			a.config.MQTTUsername, a.config.MQTTPassword, a.logger.With("component", "mqtt"))
		notifiers = append(notifiers, a.mqtt)
		remote = true
	}
	if !remote {
		a.logger.Warning("No Pushbullet token or MQTT broker configured, alerts go to the log only")
		notifiers = append(notifiers, alert.NewLog(a.logger))
	}
	return notifiers
}

// Run blocks until ctx is cancelled, then stops every component.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	a.source.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hubService.Run(ctx)
	}()

	if a.bufferService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.bufferService.Run(ctx, a.config.FrameFlushInterval)
		}()
	}

	var server *http.Server
	if a.config.StatusPort > 0 {
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", a.config.StatusPort),
			Handler: route.SetupRoutes(a.manager, a.hubService, a.config, a.logger.With("component", "http")),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status server failed: %v", err)
			}
		}()
		a.logger.Info("📍 Status server: http://localhost:%d", a.config.StatusPort)
	}

	a.logger.Info("🚀 Fire watch running")
	a.logger.Info("📹 Stream: %s", a.config.StreamSource)
	a.logger.Info("🤖 Model: %s (%s)", a.config.ModelPath, a.config.ModelBackend)

	a.manager.Run(ctx)

	return a.shutdown(server, &wg)
}

func (a *App) shutdown(server *http.Server, wg *sync.WaitGroup) error {
	var errs []error

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("status server shutdown: %w", err))
		}
		cancel()
	}

	a.source.Stop()
	a.filter.Close()
	if err := a.classifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine close: %w", err))
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}

	wg.Wait()
	a.logger.Info("👋 Shutdown complete")
	a.logger.Sync()
	return errors.Join(errs...)
}
