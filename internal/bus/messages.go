package bus

// Command actions understood by the dispatcher.
const (
	ActionDisplay = "display"
	ActionClear   = "clear"
	ActionStatus  = "status"
)

// Registration acknowledgment statuses sent by the coordinator.
const (
	StatusRegistered = "registered"
	StatusUpdated    = "updated"
)

// DisplayCapabilities describes the panel hardware, discovered at
// startup and sent unchanged with every registration attempt.
type DisplayCapabilities struct {
	// Width and Height are the panel dimensions in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Orientation is "landscape" or "portrait".
	Orientation string `json:"orientation"`

	// Model identifies the panel (e.g. "inky_impression_13_spectra6").
	Model string `json:"model"`
}

// RegistrationRequest is the device announcement published to
// inky/register on startup. It is built once and republished verbatim
// until the coordinator acknowledges it.
type RegistrationRequest struct {
	DeviceID string              `json:"device_id"`
	Display  DisplayCapabilities `json:"display"`
	Room     *string             `json:"room"`
}

// RegistrationAck is the coordinator's response received on
// inky/{device}/registered. It carries the object-store credentials the
// device needs before it can serve display commands.
//
// Duplicates are applied idempotently: credentials are simply
// overwritten.
type RegistrationAck struct {
	// Status is "registered" for a new device or "updated" for a
	// re-registration of a known one.
	Status string `json:"status"`

	StoreEndpoint  string `json:"minio_endpoint"`
	StoreBucket    string `json:"minio_bucket"`
	StoreAccessKey string `json:"minio_access_key"`
	StoreSecretKey string `json:"minio_secret_key"`
	StoreSecure    bool   `json:"minio_secure"`
}

// Command is a display instruction received on inky/{device}/command.
//
// Field validity depends on Action: "display" requires both ImagePath
// and ImageID, "clear" and "status" require neither. Validation happens
// in the dispatcher, not here, so that invalid commands still produce a
// failure acknowledgment.
type Command struct {
	Action    string `json:"action"`
	ImagePath string `json:"image_path,omitempty"`
	ImageID   string `json:"image_id,omitempty"`

	// Title is a human-readable label used only for logging.
	Title string `json:"title,omitempty"`
}

// Acknowledgment is the per-command status report published to
// inky/{device}/status. Exactly one is emitted for every processed
// command, regardless of outcome.
type Acknowledgment struct {
	DeviceID string `json:"device_id"`

	// ImageID is the image the device currently believes is displayed,
	// or null when the screen is blank.
	ImageID *string `json:"image_id"`

	Success bool `json:"successful_display_change"`

	// Error carries the failure description, or null on success.
	Error *string `json:"error"`
}
