package bus

import "fmt"

// TopicPrefix is the base for all display-agent topics.
//
// The topic scheme is shared with the coordinator:
//
//	inky/register              registration requests (all devices)
//	inky/{device}/registered   registration acknowledgments
//	inky/{device}/command      display commands
//	inky/{device}/status       per-command acknowledgments
//	inky/{device}/availability retained online/offline presence
const TopicPrefix = "inky"

// Topics builds the MQTT topics for a single device.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct {
	DeviceID string
}

// Register returns the shared registration request topic.
//
// Example: inky/register
func (Topics) Register() string {
	return fmt.Sprintf("%s/register", TopicPrefix)
}

// Registered returns the device's registration acknowledgment topic.
//
// Example: inky/kitchen-display/registered
func (t Topics) Registered() string {
	return fmt.Sprintf("%s/%s/registered", TopicPrefix, t.DeviceID)
}

// Command returns the device's inbound command topic.
//
// Example: inky/kitchen-display/command
func (t Topics) Command() string {
	return fmt.Sprintf("%s/%s/command", TopicPrefix, t.DeviceID)
}

// Status returns the device's outbound acknowledgment topic.
//
// Example: inky/kitchen-display/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, t.DeviceID)
}

// Availability returns the device's retained presence topic.
//
// Example: inky/kitchen-display/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, t.DeviceID)
}
