package protocol

// HeaderType is field 0 of every message.
type HeaderType int

// Заголовки сообщений прошивки.
const (
	HeaderOnOffChange HeaderType = iota
	HeaderModeChange
	HeaderCustomArrayColorChange
	HeaderBrightnessChange
	HeaderCustomColorCountChange
	HeaderIdleTimeoutChange
	HeaderStateUpdate
	HeaderCustomColorUpdate
)

var headerNames = map[HeaderType]string{
	HeaderOnOffChange:            "on-off",
	HeaderModeChange:             "mode",
	HeaderCustomArrayColorChange: "custom-array-color",
	HeaderBrightnessChange:       "brightness",
	HeaderCustomColorCountChange: "custom-color-count",
	HeaderIdleTimeoutChange:      "idle-timeout",
	HeaderStateUpdate:            "state-update",
	HeaderCustomColorUpdate:      "custom-color-update",
}

func (h HeaderType) String() string {
	if name, ok := headerNames[h]; ok {
		return name
	}
	return "extension"
}

// Broadcast reports whether messages with this header go to every serial device.
func (h HeaderType) Broadcast() bool {
	return h == HeaderStateUpdate || h == HeaderCustomColorUpdate
}

// Message is one routable unit of a packet.
type Message struct {
	Header   HeaderType // Header - тип сообщения.
	Index    int        // Index - аппаратный индекс, 0 означает все устройства.
	HasIndex bool       // HasIndex - признак наличия поля индекса.
	Args     []int      // Args - остальные поля.

	// Discovery marks the bare discovery marker passed through untouched.
	Discovery bool
}

// DeviceInfo describes one lighting device announced in a discovery reply.
type DeviceInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Product string `json:"product"`
}

// DiscoveryReply is the decoded form of a DISCOVERY_PACKET answer.
type DiscoveryReply struct {
	Major         int
	Minor         int
	CRC           bool
	Capabilities  int
	MaxPacketSize int
	Count         int
	Devices       []DeviceInfo
}
