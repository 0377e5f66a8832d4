package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"udp2serial/internal/serialport"
)

// Config структура конфигурации.
type Config struct {
	Logger    LogConf                `toml:"logger"`    // Logger - конфигурация регистратора.
	UDP       UDPConf                `toml:"udp"`       // UDP - сетевая сторона ретранслятора.
	Serial    serialport.PortOptions `toml:"serial"`    // Serial - параметры последовательных портов.
	Discovery DiscoveryConf          `toml:"discovery"` // Discovery - параметры рукопожатия.
	Relay     RelayConf              `toml:"relay"`     // Relay - параметры основного цикла.
	MQTT      MQTTConf               `toml:"mqtt"`      // MQTT - зеркалирование статуса.
}

// LogConf структура конфигурации.
type LogConf struct {
	Level string `toml:"log-level"` // Level - уровень логирования.
}

// UDPConf настройки UDP сокета.
type UDPConf struct {
	Port          int      `toml:"port"`           // Port - локальный порт.
	InterfaceCIDR string   `toml:"interface-cidr"` // InterfaceCIDR - сеть интерфейса для привязки, пусто - все интерфейсы.
	ReplyPort     int      `toml:"reply-port"`     // ReplyPort - порт ответа, 0 - порт отправителя.
	ReadTimeout   Duration `toml:"read-timeout"`   // ReadTimeout - таймаут чтения датаграммы.
	MaxDatagram   int      `toml:"max-datagram"`   // MaxDatagram - максимальный размер датаграммы.
}

// DiscoveryConf настройки рукопожатия.
type DiscoveryConf struct {
	PollInterval        Duration `toml:"poll-interval"`
	Timeout             Duration `toml:"timeout"` // Timeout - 0 означает ждать бесконечно.
	ServerMaxPacketSize int      `toml:"server-max-packet-size"`
}

// RelayConf настройки основного цикла.
type RelayConf struct {
	Overflow      string   `toml:"overflow"` // Overflow - "defer" или "drop".
	StatsInterval Duration `toml:"stats-interval"`
	ReadChunk     int      `toml:"read-chunk"`
	ReadCap       int      `toml:"read-cap"`
	FragmentLimit int      `toml:"fragment-limit"`
}

// MQTTConf структура конфигурации.
type MQTTConf struct {
	Enabled       bool   `toml:"enabled"`
	ClientID      string `toml:"clientID"`       // ClientID - имя клиента.
	Host          string `toml:"server"`         // Host - адрес MQTT сервера.
	Port          string `toml:"port"`           // Port - порт MQTT сервера.
	User          string `toml:"user"`           // User - логин для подключения к MQTT серверу.
	Password      string `toml:"password"`       // Password - пароль для подключения к MQTT серверу.
	Qos           byte   `toml:"qos"`            // Qos - качество обслуживания.
	TopicPrefix   string `toml:"topic-prefix"`   // TopicPrefix - префикс топиков статуса.
	MirrorPackets bool   `toml:"mirror-packets"` // MirrorPackets - публиковать пакеты от устройств.
}

// Duration is a time.Duration decoded from strings like "20ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logger: LogConf{Level: "info"},
		UDP: UDPConf{
			Port:        10008,
			ReadTimeout: Duration{20 * time.Millisecond},
			MaxDatagram: 512,
		},
		Serial: serialport.PortOptions{BaudRate: serialport.DefaultBaudRate},
		Discovery: DiscoveryConf{
			PollInterval:        Duration{100 * time.Millisecond},
			ServerMaxPacketSize: 250,
		},
		Relay: RelayConf{
			Overflow:      "defer",
			StatsInterval: Duration{time.Minute},
			ReadChunk:     200,
			ReadCap:       4096,
			FragmentLimit: 1024,
		},
		MQTT: MQTTConf{
			Host:        "localhost",
			Port:        "1883",
			TopicPrefix: "udp2serial",
		},
	}
}

// NewConfig конструктор. An empty path returns the defaults.
func NewConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values a config file may have broken.
func (c *Config) Validate() error {
	if c.UDP.Port < 0 || c.UDP.Port > 65535 {
		return fmt.Errorf("udp port %d out of range", c.UDP.Port)
	}
	if c.UDP.ReplyPort < 0 || c.UDP.ReplyPort > 65535 {
		return fmt.Errorf("udp reply-port %d out of range", c.UDP.ReplyPort)
	}
	if c.UDP.ReadTimeout.Duration <= 0 {
		return fmt.Errorf("udp read-timeout must be positive")
	}
	if c.UDP.MaxDatagram <= 0 {
		return fmt.Errorf("udp max-datagram must be positive")
	}
	if c.Discovery.PollInterval.Duration <= 0 {
		return fmt.Errorf("discovery poll-interval must be positive")
	}
	if c.Discovery.Timeout.Duration < 0 {
		return fmt.Errorf("discovery timeout must not be negative")
	}
	if c.Relay.Overflow != "defer" && c.Relay.Overflow != "drop" {
		return fmt.Errorf("relay overflow %q: expected defer or drop", c.Relay.Overflow)
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	return nil
}
