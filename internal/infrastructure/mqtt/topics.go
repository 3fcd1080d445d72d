package mqtt

import "fmt"

// Topic prefixes for the Raptor-X event bus.
//
// All topics use the scheme: raptorx/{category}/{id}/{aspect}
const (
	// TopicPrefix is the base for all Raptor-X topics.
	TopicPrefix = "raptorx"

	// TopicPrefixSystem is the base for control-plane status topics.
	TopicPrefixSystem = "raptorx/system"
)

// Topics provides builders for Raptor-X MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceStatus("dev-7f3a")
//	// Returns: "raptorx/devices/dev-7f3a/status"
type Topics struct{}

// DeviceStatus returns the topic for device liveness transitions.
//
// Example: raptorx/devices/dev-7f3a/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/status", TopicPrefix, deviceID)
}

// RunStatus returns the topic for run lifecycle events.
//
// Example: raptorx/runs/run-abc123/status
func (Topics) RunStatus(runID string) string {
	return fmt.Sprintf("%s/runs/%s/status", TopicPrefix, runID)
}

// CampaignStatus returns the topic for campaign lifecycle events.
//
// Example: raptorx/campaigns/cmp-xyz789/status
func (Topics) CampaignStatus(campaignID string) string {
	return fmt.Sprintf("%s/campaigns/%s/status", TopicPrefix, campaignID)
}

// QueueStats returns the topic for periodic inference queue snapshots.
//
// Example: raptorx/inference/queue
func (Topics) QueueStats() string {
	return fmt.Sprintf("%s/inference/queue", TopicPrefix)
}

// SystemStatus returns the control-plane status topic. This is also the
// LWT topic: the broker publishes an offline message here if the control
// plane disconnects unexpectedly.
//
// Example: raptorx/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatuses returns a pattern matching all device liveness topics.
//
// Pattern: raptorx/devices/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/devices/+/status", TopicPrefix)
}

// AllRunStatuses returns a pattern matching all run lifecycle topics.
//
// Pattern: raptorx/runs/+/status
func (Topics) AllRunStatuses() string {
	return fmt.Sprintf("%s/runs/+/status", TopicPrefix)
}

// AllCampaignStatuses returns a pattern matching all campaign topics.
//
// Pattern: raptorx/campaigns/+/status
func (Topics) AllCampaignStatuses() string {
	return fmt.Sprintf("%s/campaigns/+/status", TopicPrefix)
}

// AllTopics returns a pattern matching all Raptor-X topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: raptorx/#
func (Topics) AllTopics() string {
	return "raptorx/#"
}
