package network

import (
	"net"
	"testing"
)

func TestCalculateBroadcast(t *testing.T) {
	tests := []struct {
		name     string
		ip       net.IP
		mask     net.IPMask
		expected string
	}{
		{
			name:     "Class C network",
			ip:       net.ParseIP("192.168.1.100"),
			mask:     net.IPv4Mask(255, 255, 255, 0),
			expected: "192.168.1.255",
		},
		{
			name:     "Class A network",
			ip:       net.ParseIP("10.0.0.5"),
			mask:     net.IPv4Mask(255, 0, 0, 0),
			expected: "10.255.255.255",
		},
		{
			name:     "/28 subnet",
			ip:       net.ParseIP("192.168.1.20"),
			mask:     net.IPv4Mask(255, 255, 255, 240),
			expected: "192.168.1.31",
		},
		{
			name:     "16-byte mask",
			ip:       net.ParseIP("192.168.4.9"),
			mask:     net.CIDRMask(120, 128),
			expected: "192.168.4.255",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calculateBroadcast(tt.ip, tt.mask)
			if result == nil {
				t.Fatalf("calculateBroadcast returned nil")
			}
			if result.String() != tt.expected {
				t.Errorf("calculateBroadcast(%s, %v) = %s, want %s",
					tt.ip, tt.mask, result.String(), tt.expected)
			}
		})
	}
}

func TestCalculateBroadcast_NilInputs(t *testing.T) {
	if calculateBroadcast(nil, net.IPv4Mask(255, 0, 0, 0)) != nil {
		t.Error("expected nil for nil IP")
	}
	if calculateBroadcast(net.ParseIP("10.0.0.1"), nil) != nil {
		t.Error("expected nil for nil mask")
	}
	if calculateBroadcast(net.ParseIP("fe80::1"), net.CIDRMask(64, 128)) != nil {
		t.Error("expected nil for IPv6")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		iface    string
		expected string
	}{
		{"eth0", KindEthernet},
		{"enp3s0", KindEthernet},
		{"wlan0", KindWiFi},
		{"wlp2s0", KindWiFi},
		{"docker0", KindOther},
		{"tun0", KindOther},
	}

	for _, tt := range tests {
		if got := Kind(tt.iface); got != tt.expected {
			t.Errorf("Kind(%q) = %q, want %q", tt.iface, got, tt.expected)
		}
	}
}

func TestFromAddrs(t *testing.T) {
	_, lan, _ := net.ParseCIDR("192.168.1.10/24")
	lan.IP = net.ParseIP("192.168.1.10")
	_, p2p, _ := net.ParseCIDR("10.8.0.1/32")
	_, v6, _ := net.ParseCIDR("fe80::1/64")

	got := fromAddrs("eth0", []net.Addr{lan, p2p, v6})
	if len(got) != 1 {
		t.Fatalf("expected 1 interface, got %d", len(got))
	}
	if got[0].Address != "192.168.1.10" || got[0].Broadcast != "192.168.1.255" || got[0].Kind != KindEthernet {
		t.Errorf("unexpected interface %+v", got[0])
	}
}

func TestSortInterfaces(t *testing.T) {
	got := sortInterfaces([]Interface{
		{Name: "tun0", Kind: KindOther},
		{Name: "wlan0", Kind: KindWiFi},
		{Name: "eth0", Kind: KindEthernet},
	})

	want := []string{"eth0", "wlan0", "tun0", "localhost", "global-broadcast"}
	if len(got) != len(want) {
		t.Fatalf("expected %d interfaces, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestList_AlwaysIncludesLocalhostAndGlobal(t *testing.T) {
	ifaces, err := List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(ifaces) < 2 {
		t.Fatalf("expected at least 2 interfaces, got %d", len(ifaces))
	}
	if ifaces[len(ifaces)-2].Kind != KindLocalhost {
		t.Error("localhost should be second to last")
	}
	if ifaces[len(ifaces)-1].Broadcast != GlobalBroadcast {
		t.Error("global broadcast should be last")
	}
}

func TestResolve(t *testing.T) {
	ifaces := sortInterfaces([]Interface{
		{Name: "wlan0", Broadcast: "192.168.0.255", Kind: KindWiFi},
		{Name: "eth0", Broadcast: "10.0.0.255", Kind: KindEthernet},
	})

	tests := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{"", "10.0.0.255", false},
		{Auto, "10.0.0.255", false},
		{"wlan0", "192.168.0.255", false},
		{"localhost", "127.0.0.1", false},
		{"2.255.255.255", "2.255.255.255", false},
		{"::1", "", true},
		{"eth9", "", true},
	}

	for _, tt := range tests {
		got, err := Resolve(tt.target, ifaces)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestResolve_NoLANFallsBackToGlobal(t *testing.T) {
	got, err := Resolve(Auto, sortInterfaces(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got != GlobalBroadcast {
		t.Errorf("got %s, want %s", got, GlobalBroadcast)
	}
}
