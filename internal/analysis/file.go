package analysis

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/datastore"
	"github.com/teascan/teascan-go/internal/geocode"
	"github.com/teascan/teascan-go/internal/inference"
	"github.com/teascan/teascan-go/internal/observation"
	"github.com/teascan/teascan-go/internal/snapshot"
)

// ScanSourceFile marks scans created by the file and directory run modes.
const ScanSourceFile = "file"

// fileScanner holds the shared dependencies for one-shot image scans.
type fileScanner struct {
	settings *conf.Settings
	client   *inference.Client
	geocoder *geocode.Client
	store    datastore.Interface
}

// newFileScanner wires the scanner and returns a cleanup function that
// releases the inference client and the database connection.
func newFileScanner(settings *conf.Settings) (*fileScanner, func(), error) {
	fs := &fileScanner{
		settings: settings,
		client:   inference.New(settings),
	}
	if settings.Geocode.Enabled {
		fs.geocoder = geocode.New(settings)
	}

	fs.store = datastore.New(settings)
	if fs.store != nil {
		if err := fs.store.Open(); err != nil {
			fs.client.Close()
			return nil, nil, err
		}
	} else {
		log.Println("No database output enabled, results will not be persisted")
	}

	cleanup := func() {
		fs.client.Close()
		if fs.store != nil {
			closeDataStore(fs.store)
		}
	}
	return fs, cleanup, nil
}

// FileScan analyzes a single JPEG image and prints the result.
func FileScan(settings *conf.Settings, path string) error {
	if err := validateImageFile(path); err != nil {
		return err
	}

	fs, cleanup, err := newFileScanner(settings)
	if err != nil {
		return err
	}
	defer cleanup()

	record, err := fs.scanOne(context.Background(), path)
	if err != nil {
		return err
	}
	printScanResult(path, record, fs.store != nil)
	return nil
}

// DirectoryScan analyzes every JPEG image in a directory. Failures on
// individual files are reported and do not stop the run.
func DirectoryScan(settings *conf.Settings, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("error reading directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return fmt.Errorf("no JPEG images found in %s", dir)
	}

	fs, cleanup, err := newFileScanner(settings)
	if err != nil {
		return err
	}
	defer cleanup()

	var failed int
	for _, path := range paths {
		record, err := fs.scanOne(context.Background(), path)
		if err != nil {
			failed++
			fmt.Printf("%s: scan failed: %v\n", filepath.Base(path), err)
			continue
		}
		fmt.Printf("%s: %s (%.0f%% confidence)\n", filepath.Base(path), record.Label, record.Confidence*100)
	}

	fmt.Printf("Processed %d images, %d failed\n", len(paths), failed)
	if failed == len(paths) {
		return fmt.Errorf("all %d images failed to scan", failed)
	}
	return nil
}

// scanOne runs the full scan flow for one image on disk.
func (fs *fileScanner) scanOne(ctx context.Context, path string) (*datastore.ScanRecord, error) {
	jpegData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	img, err := snapshot.DecodeJPEG(jpegData)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid JPEG image: %w", path, err)
	}

	result, err := fs.client.Predict(ctx, jpegData)
	if err != nil {
		return nil, err
	}

	imageB64, err := snapshot.Compress(img, fs.settings.Snapshot.MaxSizeKB, fs.settings.Snapshot.MaxDimension)
	if err != nil {
		return nil, err
	}

	locationName := geocode.UnknownLocation
	if fs.geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		locationName = fs.geocoder.LocationName(geoCtx, fs.settings.Station.Latitude, fs.settings.Station.Longitude)
		cancel()
	}

	record := observation.New(fs.settings, result, imageB64, ScanSourceFile, locationName)
	if fs.store != nil {
		if err := fs.store.Save(&record); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

// validateImageFile checks that the path points to a non-empty regular file.
func validateImageFile(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error accessing file %s: %w", filepath.Base(path), err)
	}
	if fileInfo.IsDir() {
		return fmt.Errorf("the path %s is a directory, not a file", filepath.Base(path))
	}
	if fileInfo.Size() == 0 {
		return fmt.Errorf("file %s is empty", filepath.Base(path))
	}
	return nil
}

// printScanResult writes a human readable result summary to stdout.
func printScanResult(path string, record *datastore.ScanRecord, saved bool) {
	fmt.Printf("Image: %s\n", filepath.Base(path))
	fmt.Printf("Result: %s (%.0f%% confidence)\n", record.Label, record.Confidence*100)
	fmt.Printf("Tea leaf: %v (%.0f%%), healthy: %v\n", record.IsTeaLeaf, record.TeaConfidence*100, record.IsHealthy)
	if len(record.Detections) > 0 {
		fmt.Printf("Detections:\n")
		for i := range record.Detections {
			d := &record.Detections[i]
			fmt.Printf("  %s %s (%.0f%%)\n", d.Kind, d.Category, d.Confidence*100)
		}
	}
	fmt.Printf("Inference time: %.1fms\n", record.InferenceTime)
	if record.LocationName != geocode.UnknownLocation {
		fmt.Printf("Location: %s\n", record.LocationName)
	}
	if saved {
		fmt.Printf("Saved scan: %s\n", record.ID)
	}
}
