// Package network enumerates IPv4 interfaces and resolves the broadcast
// address the Art-Net mirror sends to.
package network

import (
	"fmt"
	"net"
	"strings"
)

// Interface kinds, in the order List returns them.
const (
	KindEthernet  = "ethernet"
	KindWiFi      = "wifi"
	KindOther     = "other"
	KindLocalhost = "localhost"
	KindGlobal    = "global"
)

// Auto picks the first ethernet or wifi broadcast address.
const Auto = "auto"

// GlobalBroadcast is the limited broadcast address.
const GlobalBroadcast = "255.255.255.255"

// Interface is a broadcast target.
type Interface struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Broadcast string `json:"broadcast"`
	Kind      string `json:"kind"`
}

// Kind guesses the interface kind from its name.
func Kind(ifaceName string) string {
	name := strings.ToLower(ifaceName)

	switch {
	case strings.HasPrefix(name, "wlan"),
		strings.HasPrefix(name, "wl"),
		strings.Contains(name, "wifi"),
		strings.Contains(name, "wireless"):
		return KindWiFi
	case strings.HasPrefix(name, "eth"),
		strings.HasPrefix(name, "en"):
		return KindEthernet
	default:
		return KindOther
	}
}

// calculateBroadcast computes the broadcast address from IP and netmask
func calculateBroadcast(ip net.IP, mask net.IPMask) net.IP {
	if ip == nil || mask == nil {
		return nil
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}

	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}

	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}

// List returns the broadcast targets of every up, non-loopback IPv4
// interface, ethernet first, followed by localhost and the global broadcast.
func List() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var found []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		found = append(found, fromAddrs(iface.Name, addrs)...)
	}
	return sortInterfaces(found), nil
}

func fromAddrs(name string, addrs []net.Addr) []Interface {
	var out []Interface
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		broadcast := calculateBroadcast(ip4, ipNet.Mask)
		// point-to-point links have no broadcast
		if broadcast == nil || broadcast.Equal(ip4) {
			continue
		}
		out = append(out, Interface{
			Name:      name,
			Address:   ip4.String(),
			Broadcast: broadcast.String(),
			Kind:      Kind(name),
		})
	}
	return out
}

func sortInterfaces(found []Interface) []Interface {
	out := make([]Interface, 0, len(found)+2)
	for _, kind := range []string{KindEthernet, KindWiFi, KindOther} {
		for _, iface := range found {
			if iface.Kind == kind {
				out = append(out, iface)
			}
		}
	}
	out = append(out,
		Interface{Name: "localhost", Address: "127.0.0.1", Broadcast: "127.0.0.1", Kind: KindLocalhost},
		Interface{Name: "global-broadcast", Address: "0.0.0.0", Broadcast: GlobalBroadcast, Kind: KindGlobal},
	)
	return out
}

// Resolve turns a configured target into a broadcast address. target may be
// Auto, an interface name, or a literal IPv4 address.
func Resolve(target string, ifaces []Interface) (string, error) {
	if target == "" || target == Auto {
		for _, iface := range ifaces {
			if iface.Kind == KindEthernet || iface.Kind == KindWiFi {
				return iface.Broadcast, nil
			}
		}
		return GlobalBroadcast, nil
	}

	if ip := net.ParseIP(target); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("broadcast address %s is not IPv4", target)
		}
		return ip.To4().String(), nil
	}

	for _, iface := range ifaces {
		if iface.Name == target {
			return iface.Broadcast, nil
		}
	}
	return "", fmt.Errorf("no interface named %q", target)
}
