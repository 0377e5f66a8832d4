package clientmqtt

import (
	"udp2serial/internal/protocol"
)

type MQTTConf struct {
	ClientID      string // ClientID - уникальное имя клиента для брокеров.
	Schema        string // Schema - тип подключения.
	Host          string // Host - адрес MQTT сервера.
	Port          string // Port - порт MQTT сервера.
	User          string // User - логин для подключения к MQTT серверу.
	Password      string // Password - пароль для подключения к MQTT серверу.
	Qos           byte   // Qos - качество обслуживания публикаций.
	TopicPrefix   string // TopicPrefix - корень всех топиков.
	MirrorPackets bool   // MirrorPackets - дублировать пакеты от устройств.
}

const (
	topicStatus    = "status"
	topicDiscovery = "discovery"
	topicStats     = "stats"
	topicSerial    = "serial"

	statusOnline  = "online"
	statusOffline = "offline"
)

// DiscoveryPayload is the retained description of the negotiated setup.
type DiscoveryPayload struct {
	Major               int                   `json:"major"`
	Minor               int                   `json:"minor"`
	CRC                 bool                  `json:"crc"`
	DeviceCount         int                   `json:"device_count"`
	ServerMaxPacketSize int                   `json:"server_max_packet_size"`
	HardwareIndices     []int                 `json:"hardware_indices"`
	Devices             []protocol.DeviceInfo `json:"devices"`
	Reply               string                `json:"reply"`
}
