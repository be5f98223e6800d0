package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewService(t *testing.T) {
	ips := []net.IP{net.ParseIP("192.168.1.20")}
	service, err := newService(Config{
		ServiceName: "voicelink",
		Port:        8888,
		Info:        []string{"version=1"},
	}, ips)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if service.Instance != "voicelink" {
		t.Errorf("Expected instance voicelink, got %s", service.Instance)
	}
	if service.Service != ServiceType {
		t.Errorf("Expected service %s, got %s", ServiceType, service.Service)
	}
	if service.Port != 8888 {
		t.Errorf("Expected port 8888, got %d", service.Port)
	}
	if len(service.TXT) != 1 || service.TXT[0] != "version=1" {
		t.Errorf("Unexpected TXT records %v", service.TXT)
	}
}

func TestNewServiceValidation(t *testing.T) {
	ips := []net.IP{net.ParseIP("192.168.1.20")}
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing name", cfg: Config{Port: 8888}},
		{name: "zero port", cfg: Config{ServiceName: "voicelink"}},
		{name: "port too large", cfg: Config{ServiceName: "voicelink", Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newService(tt.cfg, ips); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestToInstancePrefersIPv4(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "voicelink._voicelink._tcp.local.",
		Host:       "box.local.",
		AddrV4:     net.ParseIP("10.0.0.5"),
		Port:       8888,
		InfoFields: []string{"version=1"},
	}
	got := toInstance(entry)
	if got.Host != "10.0.0.5" || got.Port != 8888 {
		t.Errorf("Unexpected instance %+v", got)
	}

	entry.AddrV4 = nil
	if got := toInstance(entry); got.Host != "box.local." {
		t.Errorf("Expected host name fallback, got %s", got.Host)
	}
}

func TestGetLocalIPsExcludesLoopback(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("Failed to list addresses: %v", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.To4() == nil {
			t.Errorf("Unexpected address %s", ip)
		}
	}
}
