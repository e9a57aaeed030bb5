// Package analysis wires the application together for each run mode:
// realtime scanning against a camera stream, single image files and
// directories of images.
package analysis

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	api "github.com/teascan/teascan-go/internal/api/v1"
	"github.com/teascan/teascan-go/internal/camera"
	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/inference"
	"github.com/teascan/teascan-go/internal/mqttpub"
	"github.com/teascan/teascan-go/internal/notify"
	"github.com/teascan/teascan-go/internal/observability"
	"github.com/teascan/teascan-go/internal/scanner"
)

// RealtimeScan starts the full scanning station: the camera detection loop,
// the HTTP API, the telemetry endpoint and the scan event integrations. It
// blocks until SIGINT or SIGTERM.
func RealtimeScan(settings *conf.Settings) error {
	fmt.Printf("Starting %s in realtime mode. Camera: %s, interval: %dms, inference: %s\n",
		settings.Main.Name,
		settings.Realtime.Camera.Source,
		settings.Realtime.Scanner.Interval,
		settings.Inference.URL)

	// Initialize database access.
	dataStore := datastore.New(settings)
	if dataStore != nil {
		if err := dataStore.Open(); err != nil {
			return err
		}
		defer closeDataStore(dataStore)
	} else {
		log.Println("No database output enabled, scans will not be persisted")
	}

	// Initialize Prometheus metrics manager.
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	client := inference.New(settings)
	defer client.Close()

	var geocoder *geocode.Client
	if settings.Geocode.Enabled {
		geocoder = geocode.New(settings)
	}

	source, err := camera.New(settings)
	if err != nil {
		return fmt.Errorf("error initializing camera source: %w", err)
	}

	session := scanner.NewSession(settings, source, client, geocoder, dataStore, metrics)

	// quitChan is used to signal the goroutines to stop.
	quitChan := make(chan struct{})
	var wg sync.WaitGroup

	// Start the detection loop. A camera failure at boot is not fatal, the
	// session stays idle and can be started again through the API.
	if err := session.Start(context.Background()); err != nil {
		log.Printf("Failed to start detection loop: %v", err)
	}
	defer stopSession(session)

	startTelemetryEndpoint(&wg, settings, metrics, quitChan)
	startScanFanout(&wg, settings, dataStore, quitChan)

	httpShutdown, err := startAPIServer(settings, dataStore, session, client, geocoder, metrics)
	if err != nil {
		return err
	}

	monitorCtrlC(quitChan)
	<-quitChan

	if httpShutdown != nil {
		httpShutdown()
	}
	wg.Wait()
	return nil
}

// startAPIServer builds the echo instance, mounts the API controller and
// serves it in a goroutine. The returned function performs the graceful
// shutdown.
func startAPIServer(settings *conf.Settings, dataStore datastore.Interface,
	session *scanner.Session, client *inference.Client,
	geocoder *geocode.Client, metrics *observability.Metrics) (func(), error) {

	if !settings.WebServer.Enabled {
		return nil, nil
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("12M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))

	controller := api.New(e, dataStore, settings, session, client, geocoder, metrics)

	go func() {
		addr := ":" + settings.WebServer.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		}
		controller.Shutdown()
	}
	return shutdown, nil
}

// startTelemetryEndpoint starts the Prometheus metrics endpoint if enabled.
func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan chan struct{}) {
	if !settings.Realtime.Telemetry.Enabled {
		return
	}
	telemetryEndpoint, err := observability.NewEndpoint(settings, metrics)
	if err != nil {
		log.Printf("Error initializing telemetry endpoint: %v", err)
		return
	}
	telemetryEndpoint.Start(wg, quitChan)
}

// startScanFanout subscribes to saved scans and forwards each one to the
// enabled integrations, MQTT and push notifications.
func startScanFanout(wg *sync.WaitGroup, settings *conf.Settings, dataStore datastore.Interface, quitChan chan struct{}) {
	if dataStore == nil {
		return
	}
	mqttEnabled := settings.Realtime.MQTT.Enabled
	notifyEnabled := settings.Realtime.Notify.Enabled
	if !mqttEnabled && !notifyEnabled {
		return
	}

	var publisher *mqttpub.Publisher
	if mqttEnabled {
		publisher = mqttpub.New(settings)
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		if err := publisher.Connect(ctx); err != nil {
			log.Printf("Failed to connect to MQTT broker: %v", err)
		}
		cancel()
	}

	var notifier *notify.Notifier
	if notifyEnabled {
		var err error
		notifier, err = notify.New(settings)
		if err != nil {
			log.Printf("Failed to initialize push notifications: %v", err)
		}
	}

	scans, cancelSub := dataStore.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancelSub()
		if publisher != nil {
			defer publisher.Disconnect()
		}
		for {
			select {
			case <-quitChan:
				return
			case scan, ok := <-scans:
				if !ok {
					return
				}
				forwardScan(publisher, notifier, &scan)
			}
		}
	}()
}

// forwardScan pushes one saved scan to the integrations. Failures are logged
// and never interrupt the fanout loop.
func forwardScan(publisher *mqttpub.Publisher, notifier *notify.Notifier, scan *datastore.ScanRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if publisher != nil && publisher.IsConnected() {
		if err := publisher.PublishScan(ctx, scan); err != nil {
			log.Printf("Failed to publish scan %s over MQTT: %v", scan.ID, err)
		}
	}
	if notifier != nil {
		if err := notifier.NotifyScan(ctx, scan); err != nil {
			log.Printf("Failed to send notification for scan %s: %v", scan.ID, err)
		}
	}
}

// monitorCtrlC listens for SIGINT and SIGTERM and triggers shutdown.
func monitorCtrlC(quitChan chan struct{}) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		log.Println("Received shutdown signal, stopping")
		close(quitChan)
	}()
}

func stopSession(session *scanner.Session) {
	if err := session.Stop(); err != nil {
		log.Printf("Failed to stop detection session: %v", err)
	}
}

func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	} else {
		log.Println("Successfully closed database")
	}
}
