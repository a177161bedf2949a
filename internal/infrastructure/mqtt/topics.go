package mqtt

import (
	"fmt"

	"github.com/openusb/usbhubd/internal/hub"
)

// topicPrefix roots every topic this service publishes.
const topicPrefix = "usbhubd"

// Availability payloads on the status topic.
const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// StatusTopic is the service availability topic, also used as the LWT.
func StatusTopic() string {
	return topicPrefix + "/system/status"
}

// ChannelTopic returns the retained state topic for one channel and
// function ("power" or "dataline").
func ChannelTopic(function string, ch hub.Channel) string {
	return fmt.Sprintf("%s/channel/%d/%s", topicPrefix, ch, function)
}

// EventTopic is the non-retained JSON change event stream.
func EventTopic() string {
	return topicPrefix + "/events"
}
