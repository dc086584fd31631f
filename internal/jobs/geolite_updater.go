package jobs

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"tally/internal/config"
	"tally/internal/pkg/geoip"
	"tally/internal/settings"
)

const (
	// MaxMind publishes GeoLite2 updates weekly.
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	MaxMindDownloadURL    = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&suffix=tar.gz"
	KeyGeoLiteLastUpdate  = "geolite_last_update"
)

var errNoMMDB = errors.New("no .mmdb file found in archive")

// GeoLiteUpdaterJob keeps the GeoLite2 City database fresh when a license
// key is configured.
type GeoLiteUpdaterJob struct {
	dbManager   cartridge.DBManager
	logger      *slog.Logger
	cfg         *config.Config
	client      *http.Client
	downloadURL string
	reload      func()
	now         func() time.Time
}

// NewGeoLiteUpdaterJob creates a new GeoLite updater job
func NewGeoLiteUpdaterJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		dbManager:   dbManager,
		logger:      logger,
		cfg:         cfg,
		client:      &http.Client{Timeout: 5 * time.Minute},
		downloadURL: MaxMindDownloadURL,
		reload:      geoip.ReloadGeoDB,
		now:         time.Now,
	}
}

func (j *GeoLiteUpdaterJob) Name() string { return "geolite_updater" }

// Run downloads a new database when the last one is older than a week.
func (j *GeoLiteUpdaterJob) Run() error {
	licenseKey := strings.TrimSpace(j.cfg.GeoLiteLicenseKey)
	if licenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	db := j.dbManager.GetConnection()
	lastUpdate := lastGeoLiteUpdate(db)
	if j.now().Sub(lastUpdate) < GeoLiteUpdateInterval && j.databaseExists() {
		j.logger.Debug("GeoLite database is up to date", slog.Time("last_update", lastUpdate))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(licenseKey); err != nil {
		return fmt.Errorf("failed to update GeoLite database: %w", err)
	}
	j.reload()

	if err := settings.UpdateSetting(db, j.logger, KeyGeoLiteLastUpdate, j.now().UTC().Format(time.RFC3339)); err != nil {
		j.logger.Error("Failed to record GeoLite update time", slog.Any("error", err))
	}

	j.logger.Info("GeoLite database updated successfully", slog.String("path", j.databasePath()))
	return nil
}

func lastGeoLiteUpdate(db *gorm.DB) time.Time {
	value, err := settings.GetSetting(db, KeyGeoLiteLastUpdate)
	if err != nil || value == "" {
		return time.Time{}
	}
	lastUpdate, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return lastUpdate
}

func (j *GeoLiteUpdaterJob) databasePath() string {
	if j.cfg.GeoDBPath == "" {
		return filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	return j.cfg.GeoDBPath
}

func (j *GeoLiteUpdaterJob) databaseExists() bool {
	_, err := os.Stat(j.databasePath())
	return err == nil
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(licenseKey string) error {
	destPath := j.databasePath()
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	downloadURL, err := url.Parse(j.downloadURL)
	if err != nil {
		return fmt.Errorf("invalid download URL: %w", err)
	}
	query := downloadURL.Query()
	query.Set("license_key", licenseKey)
	downloadURL.RawQuery = query.Encode()

	resp, err := j.client.Get(downloadURL.String())
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the destination and rename so readers never see a
	// partial file.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), destPath)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func extractMMDB(src io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return errNoMMDB
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}
}
