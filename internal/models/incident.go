package models

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryAccident Category = "ACCIDENT"
	CategoryShoulder Category = "SHOULDER"
)

// ParseCategory maps a query-string value onto the incident taxonomy.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(s) {
	case "ACCIDENT":
		return CategoryAccident, true
	case "SHOULDER":
		return CategoryShoulder, true
	default:
		return "", false
	}
}

type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusClearing Status = "Clearing"
)

type APIStatus string

const (
	APIStatusOnline  APIStatus = "Online"
	APIStatusOffline APIStatus = "Offline"
	APIStatusError   APIStatus = "Error"
)

// Incident is the canonical, classified form of one upstream alert. It is
// built fresh each aggregation cycle and never mutated afterwards.
type Incident struct {
	ID          string   `json:"id"`
	Category    Category `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	// LocationApproximate marks incidents whose upstream alert carried no
	// coordinates; the position is the region center, not a real fix.
	LocationApproximate bool      `json:"locationApproximate,omitempty"`
	Severity            Severity  `json:"severity,omitempty"`
	Status              Status    `json:"status,omitempty"`
	ReportedTime        time.Time `json:"reportedTime"`
	LastUpdated         time.Time `json:"lastUpdated"`
	Reliability         int       `json:"reliability,omitempty"`
	Reporter            string    `json:"reporter,omitempty"`
	Rating              int       `json:"rating,omitempty"`
	Confidence          int       `json:"confidence,omitempty"`
}

// DashboardStats is recomputed per cycle from the deduplicated incident set
// plus the fetch outcome. TilesSucceeded/TilesTotal are zero (and omitted)
// when stats are rebuilt from the store rather than from a fresh fetch.
type DashboardStats struct {
	TotalAccidents int       `json:"totalAccidents"`
	CarsOnShoulder int       `json:"carsOnShoulder"`
	LastUpdated    time.Time `json:"lastUpdated"`
	APIStatus      APIStatus `json:"apiStatus"`
	TilesSucceeded int       `json:"tilesSucceeded,omitempty"`
	TilesTotal     int       `json:"tilesTotal,omitempty"`
}

// FeedResponse is the payload served to the polling dashboard.
type FeedResponse struct {
	Incidents []Incident     `json:"incidents"`
	Stats     DashboardStats `json:"stats"`
}
