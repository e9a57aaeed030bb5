// Package mqttpub publishes saved scan records to an MQTT broker so farm
// dashboards and automations can react to detections as they happen.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/logging"
)

var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "mqtt.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "mqtt", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize mqtt file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// scanMessage is the JSON payload published for each saved scan. The image
// is left out to keep messages broker-friendly.
type scanMessage struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Label           string    `json:"label"`
	Confidence      float64   `json:"confidence"`
	IsTeaLeaf       bool      `json:"is_tea_leaf"`
	IsHealthy       bool      `json:"is_healthy"`
	TotalDetections int       `json:"total_detections"`
	Source          string    `json:"source"`
	LocationName    string    `json:"location_name"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	CreatedAt       time.Time `json:"created_at"`
}

// Publisher maintains a broker connection and publishes scan records.
type Publisher struct {
	settings       *conf.Settings
	clientID       string
	internalClient mqtt.Client
	mu             sync.Mutex
}

// New creates a publisher from the settings. Call Connect before Publish.
func New(settings *conf.Settings) *Publisher {
	return &Publisher{
		settings: settings,
		clientID: settings.Main.Name,
	}
}

// Connect establishes the broker connection, resolving the broker host
// first so DNS problems surface as their own error.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	broker := p.settings.Realtime.MQTT.Broker
	u, err := url.Parse(broker)
	if err != nil {
		return mqttError(fmt.Errorf("invalid broker URL: %w", err))
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(fmt.Errorf("failed to resolve broker hostname %s: %w", host, err))
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(p.clientID)
	opts.SetUsername(p.settings.Realtime.MQTT.Username)
	opts.SetPassword(p.settings.Realtime.MQTT.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.internalClient = mqtt.NewClient(opts)

	token := p.internalClient.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return mqttError(fmt.Errorf("connection timeout"))
	}
	if err := token.Error(); err != nil {
		return mqttError(fmt.Errorf("connection error: %w", err))
	}
	return nil
}

// PublishScan publishes one saved scan to the configured topic.
func (p *Publisher) PublishScan(ctx context.Context, scan *datastore.ScanRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isConnected() {
		return mqttError(fmt.Errorf("not connected to MQTT broker"))
	}

	payload, err := json.Marshal(scanMessage{
		ID:              scan.ID,
		UserID:          scan.UserID,
		Label:           scan.Label,
		Confidence:      scan.Confidence,
		IsTeaLeaf:       scan.IsTeaLeaf,
		IsHealthy:       scan.IsHealthy,
		TotalDetections: scan.TotalDetections,
		Source:          scan.Source,
		LocationName:    scan.LocationName,
		Latitude:        scan.Latitude,
		Longitude:       scan.Longitude,
		CreatedAt:       scan.CreatedAt,
	})
	if err != nil {
		return mqttError(fmt.Errorf("failed to marshal scan: %w", err))
	}

	topic := p.settings.Realtime.MQTT.Topic
	token := p.internalClient.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		serviceLogger.Warn("Publish timeout", "topic", topic, "scan_id", scan.ID)
		return mqttError(fmt.Errorf("publish timeout"))
	}
	if err := token.Error(); err != nil {
		return mqttError(err)
	}

	serviceLogger.Debug("Published scan", "topic", topic, "scan_id", scan.ID, "label", scan.Label)
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.internalClient != nil && p.internalClient.IsConnected() {
		p.internalClient.Disconnect(250)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isConnected()
}

func (p *Publisher) isConnected() bool {
	return p.internalClient != nil && p.internalClient.IsConnected()
}

func (p *Publisher) onConnect(client mqtt.Client) {
	serviceLogger.Info("Connected to MQTT broker", "broker", p.settings.Realtime.MQTT.Broker)
}

func (p *Publisher) onConnectionLost(client mqtt.Client, err error) {
	serviceLogger.Warn("Connection to MQTT broker lost",
		"broker", p.settings.Realtime.MQTT.Broker, "error", err)
}

func mqttError(err error) error {
	return errors.New(err).
		Component("mqttpub").
		Category(errors.CategoryMQTTPublish).
		Build()
}
