// Package mdns advertises sonar consoles on the local network and finds
// running ones.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Defaults for the console service.
const (
	DefaultService = "_sonarsim._tcp"
	DefaultDomain  = "local."
)

// Host represents a discovered sonar console.
type Host struct {
	Instance  string // Advertised name: "sonarsim on bridge"
	Hostname  string // DNS hostname: "bridge.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URL returns the console base URL on the first known address.
func (h Host) URL() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	if len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(h.Port)))
}

// Advertisement is a running service registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Advertise registers a console instance on port. Empty service and domain
// take the defaults.
func Advertise(instance, service, domain string, port int, txt []string) (*Advertisement, error) {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	srv, err := zeroconf.Register(instance, service, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", service, err)
	}
	return &Advertisement{server: srv}, nil
}

// Discover performs a blocking mDNS browse for consoles until timeout or
// ctx expires. It returns cleaned and deduplicated host entries.
func Discover(ctx context.Context, service, domain string, timeout time.Duration) ([]Host, error) {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Host, 1)
	go func() {
		done <- collect(ctx, entries)
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	return <-done, nil
}

// collect drains entries until the channel closes or ctx ends.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Host {
	resultMap := make(map[string]Host)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sortedHosts(resultMap)
			}
			if e == nil {
				continue
			}
			h := hostFromEntry(e)
			resultMap[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
		case <-ctx.Done():
			return sortedHosts(resultMap)
		}
	}
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

func sortedHosts(m map[string]Host) []Host {
	out := make([]Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
