package util

import (
	"fmt"
	"net"
)

// OutboundIP returns the local address used to reach the internet. No packet is sent.
func OutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "1.1.1.1:53")
	if err != nil {
		return nil, fmt.Errorf("determining outbound address: %w", err)
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
