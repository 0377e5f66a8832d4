package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"udp2serial/internal/clientmqtt"
	"udp2serial/internal/config"
	"udp2serial/internal/discovery"
	"udp2serial/internal/logger"
	"udp2serial/internal/relay"
	"udp2serial/internal/serialport"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] <serial-path>...\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v", err)
		os.Exit(1)
	}

	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	ports, err := serialport.OpenAll(serialport.Open, flag.Args(), cfg.Serial)
	if err != nil {
		log.With(logger.Fields{"module": "serial"}).Error(err)
		os.Exit(1)
	}
	devices := make([]*discovery.Device, len(ports))
	for i, p := range ports {
		devices[i] = discovery.NewDevice(i, flag.Arg(i), p, discovery.DeviceOptions{
			ReadChunk:     cfg.Relay.ReadChunk,
			ReadCap:       cfg.Relay.ReadCap,
			FragmentLimit: cfg.Relay.FragmentLimit,
		})
		log.With(logger.Fields{"module": "serial"}).Debugf("opened %s (%s)", flag.Arg(i), cfg.Serial)
	}
	defer closeDevices(log, devices)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := run(ctx, log, cfg, devices); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err)
		closeDevices(log, devices)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func run(ctx context.Context, log *logger.Log, cfg *config.Config, devices []*discovery.Device) error {
	negotiated, err := discovery.NewHandshake(log, devices, discovery.Options{
		PollInterval:        cfg.Discovery.PollInterval.Duration,
		Timeout:             cfg.Discovery.Timeout.Duration,
		ServerMaxPacketSize: cfg.Discovery.ServerMaxPacketSize,
	}).Run(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	log.With(logger.Fields{"module": "discovery"}).Infof("negotiated %s", negotiated)

	conn, err := relay.Listen(cfg.UDP.Port, cfg.UDP.InterfaceCIDR)
	if err != nil {
		return err
	}
	defer conn.Close()

	overflow, err := relay.ParseOverflowPolicy(cfg.Relay.Overflow)
	if err != nil {
		return err
	}
	r := relay.New(log, conn, devices, negotiated, relay.Options{
		ReadTimeout:   cfg.UDP.ReadTimeout.Duration,
		MaxDatagram:   cfg.UDP.MaxDatagram,
		ReplyPort:     cfg.UDP.ReplyPort,
		Overflow:      overflow,
		StatsInterval: cfg.Relay.StatsInterval.Duration,
	})

	if cfg.MQTT.Enabled {
		client := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
		log.With(logger.Fields{"module": "mqtt"}).Debug("NewClient created ok")
		if err := client.Start(ctx); err != nil {
			log.Error("failed to start MQTT service:", err.Error())
		} else {
			defer func() {
				if err := client.Stop(); err != nil {
					log.Error("failed to stop MQTT service:", err.Error())
				}
			}()
			client.PublishDiscovery(negotiated)
			r.SetSink(client)
		}
	}

	return r.Run(ctx)
}

func closeDevices(log *logger.Log, devices []*discovery.Device) {
	for _, d := range devices {
		if err := d.Close(); err != nil {
			log.With(logger.Fields{"module": "serial"}).Debugf("close %s: %v", d.Path, err)
		}
	}
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg config.MQTTConf) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID:      cfg.ClientID,
		Schema:        "tcp",
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		Qos:           cfg.Qos,
		TopicPrefix:   cfg.TopicPrefix,
		MirrorPackets: cfg.MirrorPackets,
	}
}
