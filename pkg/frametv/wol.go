package frametv

import (
	"fmt"
	"net"
)

// Wake sends a Wake-on-LAN magic packet so a sleeping TV comes up before
// the art channel is dialed.
func Wake(macAddr string) error {
	hw, err := net.ParseMAC(macAddr)
	if err != nil {
		return fmt.Errorf("failed to parse MAC address %q: %w", macAddr, err)
	}
	conn, err := net.Dial("udp", "255.255.255.255:9")
	if err != nil {
		return fmt.Errorf("failed to open wake-on-lan socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write(magicPacket(hw)); err != nil {
		return fmt.Errorf("failed to send wake-on-lan packet: %w", err)
	}
	return nil
}

// magicPacket is six 0xFF bytes followed by the MAC repeated sixteen times.
func magicPacket(hw net.HardwareAddr) []byte {
	packet := make([]byte, 0, 6+16*len(hw))
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet
}
