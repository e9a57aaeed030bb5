package datastore

import (
	"fmt"
	"strings"
	"time"

	"github.com/teascan/teascan-go/internal/detection"
)

// ScanStats summarizes a user's scan history for the analytics view.
type ScanStats struct {
	TotalScans        int64            `json:"total_scans"`
	LabelBreakdown    map[string]int64 `json:"label_breakdown"`
	HealthyPercentage float64          `json:"healthy_percentage"`
	MostCommonDisease string           `json:"most_common_disease,omitempty"`
	RecentScans       int64            `json:"recent_scans"` // scans in the last 7 days
}

// ScanStats aggregates a user's scans by label. The healthy percentage and
// most common disease compare labels case-insensitively so older records
// with differently cased labels still count.
func (ds *DataStore) ScanStats(userID string) (ScanStats, error) {
	stats := ScanStats{LabelBreakdown: make(map[string]int64)}

	var rows []struct {
		Label string
		Count int64
	}
	err := ds.DB.Model(&ScanRecord{}).
		Select("label, count(*) as count").
		Where("user_id = ?", userID).
		Group("label").
		Find(&rows).Error
	if err != nil {
		return ScanStats{}, dbError(fmt.Errorf("failed to aggregate scan labels: %w", err))
	}

	var healthyCount int64
	var mostCommon string
	var mostCommonCount int64
	for _, row := range rows {
		stats.TotalScans += row.Count
		stats.LabelBreakdown[row.Label] += row.Count

		if strings.EqualFold(row.Label, detection.LabelHealthy) {
			healthyCount += row.Count
			continue
		}
		if row.Count > mostCommonCount {
			mostCommonCount = row.Count
			mostCommon = row.Label
		}
	}

	if stats.TotalScans > 0 {
		stats.HealthyPercentage = float64(healthyCount) / float64(stats.TotalScans) * 100
	}
	stats.MostCommonDisease = mostCommon

	sevenDaysAgo := time.Now().AddDate(0, 0, -7)
	err = ds.DB.Model(&ScanRecord{}).
		Where("user_id = ? AND created_at > ?", userID, sevenDaysAgo).
		Count(&stats.RecentScans).Error
	if err != nil {
		return ScanStats{}, dbError(fmt.Errorf("failed to count recent scans: %w", err))
	}

	return stats, nil
}
