package relay

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// FindInterfaceIP finds the first local IPv4 address inside cidr.
func FindInterfaceIP(cidr string) (net.IP, error) {
	_, cidrNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid interface network %q: %w", cidr, err)
	}
	address, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("error getting ips: %w", err)
	}

	for _, addr := range address {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP

		if strings.Contains(ip.String(), ":") {
			continue
		}

		if cidrNet.Contains(ip) {
			return ip, nil
		}
	}

	return nil, fmt.Errorf("no local interface inside %s", cidr)
}

// Listen opens the relay's UDP socket on port. With an empty cidr it binds
// to all interfaces.
func Listen(port int, cidr string) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: port}
	if cidr != "" {
		ip, err := FindInterfaceIP(cidr)
		if err != nil {
			return nil, err
		}
		addr.IP = ip
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address %s: %w", addr, err)
	}
	return conn, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
