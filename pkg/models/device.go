package models

import "time"

// DeviceStatus represents the lifecycle state of a discovered device.
type DeviceStatus string

const (
	StatusUnknown    DeviceStatus = "unknown"
	StatusDiscovered DeviceStatus = "discovered"
	StatusOnline     DeviceStatus = "online"
	StatusWarning    DeviceStatus = "warning"
	StatusOffline    DeviceStatus = "offline"
	StatusCritical   DeviceStatus = "critical"
)

// Device is the durable record of a discovered host. Devices are never
// deleted automatically; absence only transitions them to offline so history
// survives for forensics.
type Device struct {
	DeviceID     string            `json:"device_id"`
	TenantID     string            `json:"tenant_id"`
	IP           string            `json:"ip"`
	MAC          string            `json:"mac,omitempty"`
	Hostname     string            `json:"hostname,omitempty"`
	Status       DeviceStatus      `json:"status"`
	FirstSeen    time.Time         `json:"first_seen"`
	LastSeen     time.Time         `json:"last_seen"`
	OpenServices map[int]string    `json:"open_services,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DeviceTransition is emitted on every status change and consumed by the
// baseline store and, for escalations, the scorer.
type DeviceTransition struct {
	TenantID  string       `json:"tenant_id"`
	DeviceID  string       `json:"device_id"`
	From      DeviceStatus `json:"from"`
	To        DeviceStatus `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason,omitempty"`
}

// TrafficSample is one behavioral observation for a device; produced by a
// passive collector collaborator and fed into the baseline store.
type TrafficSample struct {
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	BytesIn       float64   `json:"bytes_in"`
	BytesOut      float64   `json:"bytes_out"`
	Connections   float64   `json:"connections"`
	DistinctPorts float64   `json:"distinct_ports"`
}
