package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of the TCP protocol endpoint
const ServiceType = "_voicelink._tcp"

// Config holds advertisement settings
type Config struct {
	ServiceName string
	Port        int
	Info        []string // TXT records
}

// Advertiser answers mDNS queries until Shutdown
type Advertiser struct {
	server *mdns.Server
	logger *slog.Logger
}

// Instance describes a discovered service
type Instance struct {
	Name string
	Host string
	Port int
	Info []string
}

// Advertise announces the service on every non-loopback IPv4 address
func Advertise(cfg Config, logger *slog.Logger) (*Advertiser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback IPv4 address to advertise")
	}

	service, err := newService(cfg, ips)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	logger.Info("Advertising mDNS service",
		slog.String("name", cfg.ServiceName),
		slog.String("type", ServiceType),
		slog.Int("port", cfg.Port),
	)
	return &Advertiser{server: server, logger: logger}, nil
}

func newService(cfg Config, ips []net.IP) (*mdns.MDNSService, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	service, err := mdns.NewMDNSService(cfg.ServiceName, ServiceType, "", "", cfg.Port, ips, cfg.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return service, nil
}

// Shutdown stops answering queries
func (a *Advertiser) Shutdown() error {
	a.logger.Info("Stopping mDNS advertisement")
	return a.server.Shutdown()
}

// Browse queries the local network for voicelink services for up to timeout
func Browse(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []Instance
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			found = append(found, toInstance(entry))
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done

	if err != nil {
		return found, fmt.Errorf("mdns query failed: %w", err)
	}
	return found, nil
}

func toInstance(entry *mdns.ServiceEntry) Instance {
	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		host = entry.AddrV6.String()
	}
	return Instance{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Info: entry.InfoFields,
	}
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
