package models

import "time"

// ProtectionMetrics is the per-user summary shown on the user dashboard
type ProtectionMetrics struct {
	UserID                string    `json:"user_id" db:"user_id"`
	ProtectedContentCount int       `json:"protected_content_count" db:"protected_content_count"`
	MonitoringUptime      float64   `json:"monitoring_uptime" db:"monitoring_uptime"`
	ThreatsBlocked        int       `json:"threats_blocked" db:"threats_blocked"`
	LastScan              time.Time `json:"last_scan" db:"last_scan"`
}

// TableName returns the table name for the ProtectionMetrics model
func (ProtectionMetrics) TableName() string {
	return "protection_metrics"
}

// ScanFindings is the JSON findings column of a content scan
type ScanFindings struct {
	Threats         int `json:"threats"`
	ScannedURLs     int `json:"scanned_urls"`
	ProtectedAssets int `json:"protected_assets"`
}

// ContentScan is one monitoring run for a user
type ContentScan struct {
	ID       string       `json:"id" db:"id"`
	UserID   string       `json:"user_id" db:"user_id"`
	ScanDate time.Time    `json:"scan_date" db:"scan_date"`
	Status   string       `json:"status" db:"status"`
	Findings ScanFindings `json:"findings" db:"findings"`
}

// TableName returns the table name for the ContentScan model
func (ContentScan) TableName() string {
	return "content_scans"
}

// AdminOverview is the data behind the admin dashboard
type AdminOverview struct {
	UserCount int `json:"user_count"`
}

// UserOverview is the data behind the user dashboard
type UserOverview struct {
	Metrics     *ProtectionMetrics `json:"metrics"`
	RecentScans []*ContentScan     `json:"recent_scans"`
}
