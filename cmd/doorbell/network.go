package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// errNetworkUnavailable is returned when no usable address appears in time.
var errNetworkUnavailable = errors.New("network unavailable")

// networkPollInterval is the pause between address checks at boot.
const networkPollInterval = 500 * time.Millisecond

// addressFinder returns the device's current IPv4 address.
type addressFinder func() (net.IP, error)

// interfaceAddress returns a finder for the first IPv4 address on an up,
// non-loopback interface. name restricts the search to one interface.
func interfaceAddress(name string) addressFinder {
	return func() (net.IP, error) {
		ifaces, err := net.Interfaces()
		if err != nil {
			return nil, fmt.Errorf("listing interfaces: %w", err)
		}
		for _, iface := range ifaces {
			if name != "" && iface.Name != name {
				continue
			}
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				ipNet, ok := addr.(*net.IPNet)
				if !ok {
					continue
				}
				if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
					return ip4, nil
				}
			}
		}
		return nil, errNetworkUnavailable
	}
}

// waitForNetwork polls find until it returns an address or timeout passes.
// The first check happens immediately.
func waitForNetwork(ctx context.Context, find addressFinder, timeout, poll time.Duration) (net.IP, error) {
	deadline := time.Now().Add(timeout)
	for {
		ip, err := find()
		if err == nil {
			return ip, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s: %w", errNetworkUnavailable, timeout, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}
