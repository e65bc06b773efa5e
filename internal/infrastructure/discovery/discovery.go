// Package discovery advertises the broker on the local network over mDNS so
// devices and tools can find it without a configured address.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Service registration constants.
const (
	ServiceType = "_dcclite._udp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS-SD limit for an instance label.
	MaxInstanceNameLen = 63
)

// ErrInvalidPort is returned when the advertised port is out of range.
var ErrInvalidPort = errors.New("discovery: invalid port")

// Info describes the advertised broker.
type Info struct {
	Instance        string
	Port            int
	Version         string
	ProtocolVersion uint16

	// Interface restricts the advertisement to one network interface.
	// Empty means all interfaces.
	Interface string
}

// registerFunc matches zeroconf.Register so tests can run without
// multicast.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// Advertiser owns the mDNS registration.
type Advertiser struct {
	register registerFunc

	mu     sync.Mutex
	server *zeroconf.Server
	name   string
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser() *Advertiser {
	return &Advertiser{register: zeroconf.Register}
}

// Start registers the service, replacing any earlier registration.
func (a *Advertiser) Start(info Info) error {
	if info.Port < 1 || info.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()

	name := InstanceName(info.Instance)
	server, err := a.register(name, ServiceType, Domain, info.Port, TXTRecords(info), interfaces(info.Interface))
	if err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceType, err)
	}
	a.server = server
	a.name = name
	return nil
}

// Instance returns the registered instance name, or "" when idle.
func (a *Advertiser) Instance() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// Stop withdraws the advertisement. Safe to call when idle.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Advertiser) stopLocked() {
	if a.server != nil {
		a.server.Shutdown()
	}
	a.server = nil
	a.name = ""
}

// InstanceName returns name cut to the DNS-SD label limit, defaulting to
// "dcclite".
func InstanceName(name string) string {
	if name == "" {
		name = "dcclite"
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// TXTRecords encodes info as sorted key=value strings.
func TXTRecords(info Info) []string {
	kv := map[string]string{
		"proto": strconv.Itoa(int(info.ProtocolVersion)),
	}
	if info.Version != "" {
		kv["version"] = info.Version
	}

	out := make([]string, 0, len(kv))
	for k, v := range kv {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// interfaces returns nil (all interfaces) when name is empty or unknown.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
