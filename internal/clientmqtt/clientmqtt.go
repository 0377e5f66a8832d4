// Package clientmqtt mirrors relay status to an MQTT broker. It only
// publishes; nothing received from the broker reaches the devices.
package clientmqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"udp2serial/internal/discovery"
	"udp2serial/internal/logger"
	"udp2serial/internal/relay"
)

// Publisher структура клиента MQTT.
type Publisher struct {
	ctx       context.Context
	log       logger.Logger
	cfgClient MQTTConf
	client    mqtt.Client
	opts      *mqtt.ClientOptions
	newClient func(*mqtt.ClientOptions) mqtt.Client

	// connectWait ограничивает ожидание первого подключения в Start.
	connectWait time.Duration

	mu        sync.Mutex
	discovery []byte
}

// NewClient конструктор.
func NewClient(log logger.Logger, cfgClient MQTTConf) *Publisher {
	if cfgClient.ClientID == "" {
		cfgClient.ClientID = "udp2serial-" + uuid.NewString()
	}
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	if cfgClient.TopicPrefix == "" {
		cfgClient.TopicPrefix = "udp2serial"
	}
	return &Publisher{
		log:         log,
		cfgClient:   cfgClient,
		newClient:   mqtt.NewClient,
		connectWait: 5 * time.Second,
	}
}

// Start connects to the broker and announces the relay as online. If the
// broker does not answer within the connect wait, Start returns nil and paho
// keeps retrying in the background; status is skipped until it connects.
func (c *Publisher) Start(ctx context.Context) error {
	if c.log.GetLevel() == "debug" {
		mqtt.ERROR = pahoLogger{c.log.With(logger.Fields{"module": "paho"}), logrus.ErrorLevel}
		mqtt.CRITICAL = pahoLogger{c.log.With(logger.Fields{"module": "paho"}), logrus.ErrorLevel}
		mqtt.WARN = pahoLogger{c.log.With(logger.Fields{"module": "paho"}), logrus.WarnLevel}
	}

	c.ctx = ctx

	c.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetClientID(c.cfgClient.ClientID).
		SetWill(c.topic(topicStatus), statusOffline, c.cfgClient.Qos, true).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	c.client = c.newClient(c.opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-c.ctx.Done():
		return errors.New("context canceled")
	case <-time.After(c.connectWait):
		c.log.With(logger.Fields{"module": "mqtt"}).Warnf("broker %s:%s not reachable yet, retrying in background", c.cfgClient.Host, c.cfgClient.Port)
		return nil
	}

	c.log.With(logger.Fields{"module": "mqtt"}).Infof("Status: %v", c.client.IsConnected())
	return nil
}

// Stop marks the relay offline and disconnects.
func (c *Publisher) Stop() error {
	if c.client != nil && c.client.IsConnected() {
		token := c.client.Publish(c.topic(topicStatus), c.cfgClient.Qos, true, statusOffline)
		token.WaitTimeout(500 * time.Millisecond)
		c.client.Disconnect(500)
	}
	return nil
}

// PublishDiscovery publishes the negotiated configuration as a retained message.
func (c *Publisher) PublishDiscovery(cfg *discovery.NegotiatedConfig) {
	msg, err := json.Marshal(DiscoveryPayload{
		Major:               cfg.Major,
		Minor:               cfg.Minor,
		CRC:                 cfg.UseCRC,
		DeviceCount:         cfg.DeviceCount,
		ServerMaxPacketSize: cfg.ServerMaxPacketSize,
		HardwareIndices:     cfg.HardwareIndices(),
		Devices:             cfg.Devices,
		Reply:               cfg.DiscoveryReply(),
	})
	if err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("discovery payload: %v", err)
		return
	}
	c.mu.Lock()
	c.discovery = msg
	c.mu.Unlock()
	c.publish(c.topic(topicDiscovery), true, msg)
}

// PublishStats publishes the relay counters.
func (c *Publisher) PublishStats(s relay.Stats) {
	msg, err := json.Marshal(s)
	if err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("stats payload: %v", err)
		return
	}
	c.publish(c.topic(topicStats), false, msg)
}

// PublishPacket mirrors a verified packet received from a serial device.
func (c *Publisher) PublishPacket(serialIndex int, packet string) {
	if !c.cfgClient.MirrorPackets {
		return
	}
	c.publish(c.topic(topicSerial, strconv.Itoa(serialIndex), "packet"), false, packet)
}

func (c *Publisher) topic(parts ...string) string {
	t := c.cfgClient.TopicPrefix
	for _, p := range parts {
		t += "/" + p
	}
	return t
}

func (c *Publisher) publish(topic string, retained bool, payload interface{}) {
	if c.client == nil || !c.client.IsConnected() {
		c.log.With(logger.Fields{"module": "mqtt"}).Debugf("not connected, %s skipped", topic)
		return
	}
	token := c.client.Publish(topic, c.cfgClient.Qos, retained, payload)
	go func() {
		select {
		case <-c.ctx.Done():
			return
		case <-token.Done():
			if token.Error() != nil {
				c.log.With(logger.Fields{"module": "mqtt"}).Errorf("error publish topic %s. %v", topic, token.Error())
			}
		}
	}()
}

func (c *Publisher) connectHandler(client mqtt.Client) {
	c.log.With(logger.Fields{"module": "mqtt"}).Info("client connected to server")
	client.Publish(c.topic(topicStatus), c.cfgClient.Qos, true, statusOnline)

	// Discovery may have been skipped while the broker was down.
	c.mu.Lock()
	msg := c.discovery
	c.mu.Unlock()
	if msg != nil {
		client.Publish(c.topic(topicDiscovery), c.cfgClient.Qos, true, msg)
	}
}

func (c *Publisher) connectLostHandler(_ mqtt.Client, err error) {
	c.log.With(logger.Fields{"module": "mqtt"}).Errorf("server connect lost: %v", err)
}

// pahoLogger пишет сообщения paho в наш регистратор.
type pahoLogger struct {
	log   *logger.Log
	level logrus.Level
}

func (p pahoLogger) Println(v ...interface{}) {
	p.log.Logln(p.level, v...)
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.log.Logf(p.level, format, v...)
}
