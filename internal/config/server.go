package config

import (
	"fmt"
	"net"
)

// autodetectIP picks the first non-loopback IPv4 address on an up interface.
// Used when node.host is left blank in the config.
func autodetectIP() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable non-loopback IPv4 interface found")
}

// MainIP resolves the node's main IPv4 address: the configured node.host if
// set, otherwise the first autodetected non-loopback interface address. The
// ring ID is the SHA-1 digest of this address's dotted-decimal text.
func (cfg *NodeConfig) MainIP() (net.IP, error) {
	if cfg.Host != "" {
		ip := net.ParseIP(cfg.Host)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", cfg.Host)
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("node.host must be IPv4: %s", cfg.Host)
		}
		return ip4, nil
	}
	return autodetectIP()
}

// BindHost returns the address to bind listening sockets to: the configured
// node.bind, or "0.0.0.0" if unset.
func (cfg *NodeConfig) BindHost() string {
	if cfg.Bind != "" {
		return cfg.Bind
	}
	return "0.0.0.0"
}
