package pinger

import (
	"context"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCount echo requests sent per probe
	DefaultCount = 3
	// DefaultTimeout bounds the whole ping subprocess
	DefaultTimeout = 30 * time.Second
	// ipv6TestAddr a well known address that is always up, used only to
	// check for local ipv6 connectivity
	ipv6TestAddr = "[2001:500:9f::42]:53"
)

// ErrNoBinary returned when no ping binary could be located
var ErrNoBinary = errors.New("unable to locate ping binary")

// Pinger probes hosts with ICMP echo requests by invoking the system ping
// binary as a subprocess.
type Pinger struct {
	binary  string
	count   int
	timeout time.Duration
}

// New locates the system ping binary and returns a Pinger with default
// request count and timeout.
func New() (*Pinger, error) {
	binary, err := exec.LookPath("ping")
	if err != nil {
		return nil, ErrNoBinary
	}
	return &Pinger{binary: binary, count: DefaultCount, timeout: DefaultTimeout}, nil
}

// Ping sends echo requests to domain over the given IP version (4 or 6) and
// returns true if at least one reply came back. Subprocess failures,
// timeouts and total loss all report false.
func (p *Pinger) Ping(ctx context.Context, domain string, ipVersion int) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	versionFlag := "-4"
	if ipVersion == 6 {
		versionFlag = "-6"
	}

	cmd := exec.CommandContext(ctx, p.binary, versionFlag, "-q", "-c", strconv.Itoa(p.count), domain)
	out, err := cmd.Output()
	if err != nil {
		// non-zero exit covers hosts that failed to reply
		log.Debug().Str("domain", domain).Int("ip_version", ipVersion).Err(err).Msg("ping failed")
		return false
	}

	if len(out) == 0 {
		return false
	}
	return !totalLoss(string(out))
}

// totalLoss reports whether ping summary output declares 100% packet loss.
func totalLoss(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "% packet loss")
		if idx == -1 {
			continue
		}
		fields := strings.Fields(line[:idx])
		if len(fields) == 0 {
			continue
		}
		if fields[len(fields)-1] == "100" {
			return true
		}
	}
	return false
}

// HasLocalIPv6 checks once whether this host has ipv6 connectivity by
// connecting a UDP socket to a fixed well known address. No packets are
// sent.
func HasLocalIPv6() bool {
	conn, err := net.Dial("udp6", ipv6TestAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
