package mdns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Service browsed for brokers.
const (
	ServiceType = "_mqtt._tcp"
	Domain      = "local"
)

// DefaultTimeout bounds one browse when the caller gives none.
const DefaultTimeout = 3 * time.Second

// ErrNoBroker is returned when no broker answered before the timeout.
var ErrNoBroker = errors.New("no MQTT broker found via mDNS")

// Broker is one advertised MQTT broker.
type Broker struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
}

// Address returns the best host to dial: the first advertised IPv4
// address, then any address, then the host name.
func (b Broker) Address() string {
	if len(b.Addresses) > 0 {
		return b.Addresses[0]
	}
	return b.Host
}

// BrowseFunc matches zeroconf.Browse.
type BrowseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// Logger is the logging interface used by Resolver.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Resolver browses for brokers.
type Resolver struct {
	browse  BrowseFunc
	timeout time.Duration
	logger  Logger
}

// NewResolver creates a Resolver using zeroconf.
func NewResolver(timeout time.Duration, logger Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{browse: zeroconf.Browse, timeout: timeout, logger: logger}
}

// Discover collects every broker that answers within the timeout, sorted
// by instance name.
func (r *Resolver) Discover(ctx context.Context) ([]Broker, error) {
	found := make(map[string]Broker)
	err := r.run(ctx, func(b Broker) bool {
		if prev, ok := found[b.Instance]; ok {
			b.Addresses = mergeAddresses(prev.Addresses, b.Addresses)
		}
		found[b.Instance] = b
		return true
	})
	if err != nil {
		return nil, err
	}

	brokers := make([]Broker, 0, len(found))
	for _, b := range found {
		brokers = append(brokers, b)
	}
	sort.Slice(brokers, func(i, j int) bool { return brokers[i].Instance < brokers[j].Instance })
	return brokers, nil
}

// First returns the first broker that answers.
func (r *Resolver) First(ctx context.Context) (Broker, error) {
	var first *Broker
	err := r.run(ctx, func(b Broker) bool {
		first = &b
		return false
	})
	if err != nil {
		return Broker{}, err
	}
	if first == nil {
		return Broker{}, ErrNoBroker
	}
	return *first, nil
}

// run browses until the timeout, ctx cancellation, or visit returning false.
func (r *Resolver) run(ctx context.Context, visit func(Broker) bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)

	go func(entries, removed chan *zeroconf.ServiceEntry) {
		browseErr <- r.browse(ctx, ServiceType, Domain, entries, removed)
	}(entries, removed)

	var (
		found   <-chan *zeroconf.ServiceEntry = entries
		dropped <-chan *zeroconf.ServiceEntry = removed
	)
	for {
		select {
		case entry, ok := <-found:
			if !ok {
				return nil
			}
			b, valid := entryToBroker(entry)
			if !valid {
				continue
			}
			r.logger.Debug("mDNS broker found", "instance", b.Instance, "address", b.Address(), "port", b.Port)
			if !visit(b) {
				return nil
			}
		case _, ok := <-dropped:
			if !ok {
				dropped = nil
			}
		case err := <-browseErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("browsing %s: %w", ServiceType, err)
			}
			browseErr = nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// entryToBroker converts a zeroconf entry. Entries without a port or any
// way to reach them are ignored.
func entryToBroker(entry *zeroconf.ServiceEntry) (Broker, bool) {
	if entry == nil || entry.Port <= 0 {
		return Broker{}, false
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	b := Broker{
		Instance:  entry.Instance,
		Host:      strings.TrimSuffix(entry.HostName, "."),
		Port:      entry.Port,
		Addresses: addrs,
	}
	if b.Address() == "" {
		return Broker{}, false
	}
	return b, true
}

func mergeAddresses(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, addr := range append(append([]string{}, a...), b...) {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}
