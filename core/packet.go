package core

import (
	"fmt"
	"net"
)

func listenPacket(address string) (net.PacketConn, error) {
	c, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrSocket, address, err)
	}
	return c, nil
}

func resolve(address string) (net.Addr, error) {
	a, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrSocket, address, err)
	}
	return a, nil
}
