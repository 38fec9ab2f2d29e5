package configprovider

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ServerAddress is a single config-server endpoint.
type ServerAddress struct {
	Host string
	Port int
}

func (a ServerAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Valid reports whether a carries a usable host and port.
func (a ServerAddress) Valid() bool {
	return a.Host != "" && a.Port >= 1 && a.Port <= 65535
}

// invalidAddress is returned by addressRotator.current when no address has
// ever been configured; callers must check Valid() before dialing it.
var invalidAddress = ServerAddress{Host: "", Port: -1}

// parseServerAddresses splits ilogtail_configserver_address entries of the
// form "host:port" into ServerAddress values. Each entry is trimmed and
// split on every colon, matching the original agent's
// SplitString(addr, ":"); anything other than exactly 2 parts is a format
// error and the whole entry is logged and skipped, rather than treating a
// trailing ":port" as the separator.
func parseServerAddresses(logger log.Logger, raw []string) []ServerAddress {
	addrs := make([]ServerAddress, 0, len(raw))
	for _, entry := range raw {
		trimmed := strings.TrimSpace(entry)
		parts := strings.Split(trimmed, ":")
		if len(parts) != 2 {
			level.Warn(logger).Log("msg", "ilogtail_configserver_address format error", "wrong_address", trimmed)
			continue
		}
		host, portStr := parts[0], parts[1]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			level.Warn(logger).Log("msg", "ilogtail_configserver_address format error", "wrong_address", trimmed)
			continue
		}
		if port < 1 || port > 65535 {
			level.Warn(logger).Log("msg", "ilogtail_configserver_address illegal port", "port", port)
			continue
		}
		if host == "" {
			level.Warn(logger).Log("msg", "ilogtail_configserver_address format error", "wrong_address", trimmed)
			continue
		}
		addrs = append(addrs, ServerAddress{Host: host, Port: port})
	}
	return addrs
}

// addressRotator holds the ordered address list and the rotating current
// index. Per the design notes, rotation draws from one PRNG seeded at
// construction rather than a fresh nondeterministic source per call, so
// tests can supply a deterministic seed.
type addressRotator struct {
	addrs   []ServerAddress
	current int
	rng     *rand.Rand
}

func newAddressRotator(addrs []ServerAddress, rng *rand.Rand) *addressRotator {
	return &addressRotator{addrs: addrs, rng: rng}
}

// get returns the current address, or a new random one (different from the
// current, if more than one address is available) when change is true. If
// the list is empty, it returns invalidAddress and the caller must skip
// the cycle.
func (r *addressRotator) get(change bool) ServerAddress {
	if len(r.addrs) == 0 {
		return invalidAddress
	}
	if change {
		next := r.rng.Intn(len(r.addrs))
		for len(r.addrs) > 1 && next == r.current {
			next = r.rng.Intn(len(r.addrs))
		}
		r.current = next
	}
	return r.addrs[r.current]
}
