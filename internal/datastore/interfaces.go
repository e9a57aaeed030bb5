// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/teascan/teascan-go/internal/conf"
	"github.com/teascan/teascan-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the application performs on stored scans.
type Interface interface {
	Open() error
	Close() error
	Save(scan *ScanRecord) error
	Get(id string) (ScanRecord, error)
	Delete(id string) error
	GetUserScans(userID string, limit int) ([]ScanRecord, error)
	GetAllScans(limit int) ([]ScanRecord, error)
	SearchScans(userID, query string, limit, offset int) ([]ScanRecord, error)
	CountScans(userID, query string) (int64, error)
	ScanStats(userID string) (ScanStats, error)
	SaveUserProfile(profile *UserProfile) error
	GetUserProfile(userID string) (UserProfile, error)
	Subscribe() (<-chan ScanRecord, func())
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB

	subscribers *subscriberSet
}

// New creates a datastore for whichever database output is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{subscribers: newSubscriberSet()},
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{subscribers: newSubscriberSet()},
			Settings:  settings,
		}
	default:
		return nil
	}
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&ScanRecord{}, &ScanDetection{}, &UserProfile{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// Save stores a scan and its detections as a single transaction, then
// notifies subscribers.
func (ds *DataStore) Save(scan *ScanRecord) error {
	if ds.DB == nil {
		return dbError(fmt.Errorf("database connection is not initialized"))
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(scan).Error
	})
	if err != nil {
		return dbError(fmt.Errorf("failed to save scan: %w", err))
	}

	ds.subscribers.notify(*scan)
	return nil
}

// Get retrieves a scan with its detections by ID.
func (ds *DataStore) Get(id string) (ScanRecord, error) {
	var scan ScanRecord
	err := ds.DB.Preload("Detections").First(&scan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ScanRecord{}, notFoundError(id)
		}
		return ScanRecord{}, dbError(fmt.Errorf("failed to get scan %s: %w", id, err))
	}
	return scan, nil
}

// Delete removes a scan and its detections.
func (ds *DataStore) Delete(id string) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&ScanRecord{ID: id})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// SQLite does not enforce the cascade without foreign_keys on,
		// so clear the children explicitly.
		return tx.Where("scan_id = ?", id).Delete(&ScanDetection{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(id)
		}
		return dbError(fmt.Errorf("failed to delete scan %s: %w", id, err))
	}
	return nil
}

// GetUserScans retrieves the most recent scans for a user, newest first.
func (ds *DataStore) GetUserScans(userID string, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var scans []ScanRecord
	err := ds.DB.Preload("Detections").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&scans).Error
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to get scans for user %s: %w", userID, err))
	}
	return scans, nil
}

// GetAllScans retrieves the most recent scans across all users.
func (ds *DataStore) GetAllScans(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var scans []ScanRecord
	err := ds.DB.Preload("Detections").
		Order("created_at DESC").
		Limit(limit).
		Find(&scans).Error
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to get scans: %w", err))
	}
	return scans, nil
}

// SearchScans finds a user's scans whose label or location matches the query.
func (ds *DataStore) SearchScans(userID, query string, limit, offset int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	like := "%" + query + "%"
	var scans []ScanRecord
	err := ds.DB.Preload("Detections").
		Where("user_id = ? AND (label LIKE ? OR location_name LIKE ?)", userID, like, like).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&scans).Error
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to search scans: %w", err))
	}
	return scans, nil
}

// CountScans returns the number of a user's scans matching the search query.
// An empty query counts all of the user's scans.
func (ds *DataStore) CountScans(userID, query string) (int64, error) {
	like := "%" + query + "%"
	var count int64
	err := ds.DB.Model(&ScanRecord{}).
		Where("user_id = ? AND (label LIKE ? OR location_name LIKE ?)", userID, like, like).
		Count(&count).Error
	if err != nil {
		return 0, dbError(fmt.Errorf("failed to count scans: %w", err))
	}
	return count, nil
}

// SaveUserProfile inserts or updates a user profile.
func (ds *DataStore) SaveUserProfile(profile *UserProfile) error {
	profile.UpdatedAt = time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = profile.UpdatedAt
	}
	if err := ds.DB.Save(profile).Error; err != nil {
		return dbError(fmt.Errorf("failed to save user profile: %w", err))
	}
	return nil
}

// GetUserProfile retrieves a user profile by ID.
func (ds *DataStore) GetUserProfile(userID string) (UserProfile, error) {
	var profile UserProfile
	err := ds.DB.First(&profile, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserProfile{}, notFoundError(userID)
		}
		return UserProfile{}, dbError(fmt.Errorf("failed to get user profile: %w", err))
	}
	return profile, nil
}

// Subscribe registers for notifications of newly saved scans. The returned
// function cancels the subscription and closes the channel.
func (ds *DataStore) Subscribe() (<-chan ScanRecord, func()) {
	return ds.subscribers.add()
}

func dbError(err error) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}

func notFoundError(id string) error {
	return errors.New(fmt.Errorf("record %s not found", id)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}
