package models

import "time"

// GeolocationData is the caller location reported by the IP geolocation provider.
type GeolocationData struct {
	IP        string        `json:"ip"`
	City      string        `json:"city"`
	Region    string        `json:"region"`
	Country   string        `json:"country"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	ISP       string        `json:"isp,omitempty"`
	Security  *SecurityInfo `json:"security,omitempty"`
}

// Coordinates returns the reported position.
func (g GeolocationData) Coordinates() Coordinates {
	return Coordinates{Lat: g.Latitude, Lng: g.Longitude}
}

// ThreatLevel is the provider's risk rating of a connection.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

// SecurityInfo is the optional security assessment of a connection.
type SecurityInfo struct {
	IsProxy     bool        `json:"is_proxy"`
	IsTor       bool        `json:"is_tor"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	ThreatTypes []string    `json:"threat_types"`
}

// ServiceState is the live status of an ISP in a city.
type ServiceState string

const (
	StatusOperational ServiceState = "operational"
	StatusDegraded    ServiceState = "degraded"
	StatusOutage      ServiceState = "outage"
	StatusMaintenance ServiceState = "maintenance"
)

// Severity grades an incident.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IspStatus is the status feed entry for one ISP.
type IspStatus struct {
	ISPID       string       `json:"isp_id"`
	ISPName     string       `json:"isp_name"`
	Status      ServiceState `json:"status"`
	Message     string       `json:"message"`
	LastUpdated time.Time    `json:"last_updated"`
	Incidents   []Incident   `json:"incidents,omitempty"`
}

// Incident is a reported service disruption.
type Incident struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Severity  Severity  `json:"severity"`
	StartedAt time.Time `json:"started_at"`
	Link      string    `json:"link,omitempty"`
}

// SpeedTestResult is the outcome of one speed test run.
type SpeedTestResult struct {
	ID           string    `json:"id"`
	DownloadMbps float64   `json:"download_mbps"`
	UploadMbps   float64   `json:"upload_mbps"`
	PingMs       float64   `json:"ping_ms"`
	JitterMs     float64   `json:"jitter_ms"`
	Timestamp    time.Time `json:"timestamp"`
	ISPName      string    `json:"isp_name,omitempty"`
	CityID       string    `json:"city_id,omitempty"`
	Server       string    `json:"server,omitempty"`
}
