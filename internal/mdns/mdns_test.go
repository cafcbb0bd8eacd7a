package mdns

import (
	"context"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, ip string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, DefaultService, DefaultDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	e.Text = []string{"version=1"}
	return e
}

func TestCollectDeduplicatesAndSorts(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry, 4)
	entries <- entry(`sonarsim\ on\ bridge`, "bridge.local.", 8080, "10.0.0.2")
	entries <- entry(`sonarsim\ on\ aft`, "aft.local.", 8080, "10.0.0.3")
	entries <- nil
	entries <- entry(`sonarsim\ on\ bridge`, "bridge.local.", 8080, "10.0.0.4")
	close(entries)

	hosts := collect(context.Background(), entries)
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts[0].Hostname != "aft.local." {
		t.Fatalf("expected sorted hosts, got %q first", hosts[0].Hostname)
	}
	if hosts[1].Instance != "sonarsim on bridge" {
		t.Fatalf("expected unescaped instance, got %q", hosts[1].Instance)
	}
	if got := hosts[1].Addresses[0].String(); got != "10.0.0.4" {
		t.Fatalf("expected latest address to win, got %s", got)
	}
}

func TestCollectStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if hosts := collect(ctx, make(chan *zeroconf.ServiceEntry)); len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %d", len(hosts))
	}
}

func TestHostURL(t *testing.T) {
	h := Host{Hostname: "bridge.local.", Port: 8080}
	if got := h.URL(); got != "http://bridge.local:8080" {
		t.Fatalf("unexpected url %q", got)
	}
	h.Addresses = []net.IP{net.ParseIP("10.0.0.2")}
	if got := h.URL(); got != "http://10.0.0.2:8080" {
		t.Fatalf("unexpected url %q", got)
	}
}
