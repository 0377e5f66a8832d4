package relay

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindInterfaceIP(t *testing.T) {
	ip, err := FindInterfaceIP("127.0.0.0/8")
	require.NoError(t, err)
	assert.True(t, ip.IsLoopback())

	_, err = FindInterfaceIP("not a network")
	assert.Error(t, err)

	_, err = FindInterfaceIP(unusedNetwork(t))
	assert.Error(t, err)
}

// unusedNetwork returns a single address network no local interface is in.
func unusedNetwork(t *testing.T) string {
	t.Helper()
	addrs, err := net.InterfaceAddrs()
	require.NoError(t, err)

	for _, candidate := range []string{"203.0.113.254", "198.51.100.254", "192.0.2.254", "10.254.254.254"} {
		ip := net.ParseIP(candidate)
		taken := false
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				taken = true
				break
			}
		}
		if !taken {
			return candidate + "/32"
		}
	}
	t.Skip("every candidate address is assigned locally")
	return ""
}

func TestListen(t *testing.T) {
	conn, err := Listen(0, "127.0.0.0/8")
	require.NoError(t, err)
	defer conn.Close()

	addr := conn.LocalAddr().(*net.UDPAddr)
	assert.True(t, addr.IP.IsLoopback())
	assert.NotZero(t, addr.Port)

	_, err = Listen(0, "bogus")
	assert.Error(t, err)
}
