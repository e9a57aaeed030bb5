// Package notify pushes scan alerts to external services (Telegram, Slack,
// ntfy and the like) through shoutrrr URLs configured by the user.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/errors"
	"github.com/teascan/teascan-go/internal/logging"
)

const sendTimeout = 15 * time.Second

var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "notify.log")
	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "notify", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize notify file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Notifier sends scan alerts through one shoutrrr sender covering all
// configured URLs.
type Notifier struct {
	urls   []string
	sender *router.ServiceRouter
}

// New creates a notifier from the settings. The shoutrrr URLs are validated
// up front so misconfiguration fails at startup, not at first alert.
func New(settings *conf.Settings) (*Notifier, error) {
	urls := slices.Clone(settings.Realtime.Notify.URLs)
	if len(urls) == 0 {
		return nil, notifyError(fmt.Errorf("at least one notification URL is required"))
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, notifyError(fmt.Errorf("invalid notification URL: %w", err))
	}
	sender.Timeout = sendTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &Notifier{urls: urls, sender: sender}, nil
}

// NotifyScan sends an alert describing a saved scan. Healthy and non-leaf
// scans are skipped; growers only care about problems.
func (n *Notifier) NotifyScan(ctx context.Context, scan *datastore.ScanRecord) error {
	if !scan.IsTeaLeaf || scan.IsHealthy {
		return nil
	}
	_ = ctx // the router applies its own timeout

	title := fmt.Sprintf("TeaScan: %s detected", scan.Label)
	body := fmt.Sprintf("%s (%.0f%% confidence) at %s",
		scan.Label, scan.Confidence*100, scan.LocationName)

	params := stypes.Params{}
	params.SetTitle(title)

	var sendErrs []error
	for _, err := range n.sender.Send(body, &params) {
		if err != nil {
			sendErrs = append(sendErrs, err)
		}
	}
	if len(sendErrs) > 0 {
		serviceLogger.Warn("Some notifications failed",
			"scan_id", scan.ID, "failed", len(sendErrs), "total", len(n.urls))
		return notifyError(errors.Join(sendErrs...))
	}

	serviceLogger.Debug("Scan alert sent", "scan_id", scan.ID, "label", scan.Label)
	return nil
}

func notifyError(err error) error {
	return errors.New(err).
		Component("notify").
		Category(errors.CategoryNotification).
		Build()
}
