package tor

import (
	"bufio"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	klog "github.com/shroudnet/shroud-node/internal/log"
)

// Control errors.
var (
	// ErrTor marks any control-channel failure. Callers retry hidden
	// service publication with backoff.
	ErrTor = errors.New("tor control failure")

	// ErrNoServiceID is returned when ADD_ONION succeeds without
	// returning a ServiceID line.
	ErrNoServiceID = fmt.Errorf("%w: address not returned", ErrTor)
)

const controlTimeout = 30 * time.Second

// Control is a client for one Tor control-port connection. Commands are
// serialized; the control protocol is strictly request/reply.
type Control struct {
	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
}

// Connect dials the control port and authenticates.
func Connect(addr, password string) (*Control, error) {
	conn, err := net.DialTimeout("tcp", addr, controlTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTor, addr, err)
	}
	c := &Control{conn: conn, br: bufio.NewReader(conn)}

	cmd := "AUTHENTICATE"
	if password != "" {
		cmd = fmt.Sprintf("AUTHENTICATE %q", password)
	}
	if _, err := c.Invoke(cmd); err != nil {
		conn.Close()
		return nil, err
	}
	klog.Tor.Debug().Str("addr", addr).Msg("Tor control authenticated")
	return c, nil
}

// Close signals a final dump and closes the control connection.
func (c *Control) Close() error {
	c.Invoke("SIGNAL DUMP")
	return c.conn.Close()
}

// Invoke sends one command and returns every reply line up to and
// including the final status line. Mid replies ("250-", "250+") keep the
// read going; any final code other than 250 is an error.
func (c *Control) Invoke(cmd string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetDeadline(time.Now().Add(controlTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTor, err)
	}
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrTor, err)
	}

	var lines []string
	inData := false
	for {
		raw, err := c.br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrTor, err)
		}
		line := strings.TrimRight(raw, "\r\n")
		lines = append(lines, line)

		// A "250+" line opens a data block terminated by a lone ".".
		if inData {
			if line == "." {
				inData = false
			}
			continue
		}
		if len(line) >= 4 && line[3] == '+' {
			inData = true
			continue
		}

		// "xyz-" is a mid line; "xyz " (or a bare code) ends the reply.
		if len(line) >= 4 && line[3] == '-' {
			continue
		}
		if !strings.HasPrefix(line, "250") {
			return lines, fmt.Errorf("%w: %s -> %s", ErrTor, firstWord(cmd), line)
		}
		return lines, nil
	}
}

// AddOnion publishes a hidden service forwarding externalPort to
// internalPort, keyed by the given ed25519 seed. If the derived address is
// already among the detached services, it is returned without issuing
// ADD_ONION again.
func (c *Control) AddOnion(seed []byte, externalPort, internalPort uint16) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: onion seed must be %d bytes, got %d", ErrTor, ed25519.SeedSize, len(seed))
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	serviceID := ServiceID(pub)

	running, err := c.QueryHiddenServices()
	if err != nil {
		return "", err
	}
	for _, svc := range running {
		if svc == serviceID {
			klog.Tor.Info().Str("service", serviceID).Msg("Hidden service already running")
			return svc, nil
		}
	}

	cmd := fmt.Sprintf("ADD_ONION ED25519-V3:%s Flags=DiscardPK,Detach Port=%d,%d",
		TorKeyBlob(seed), externalPort, internalPort)
	reply, err := c.Invoke(cmd)
	if err != nil {
		return "", err
	}
	for _, line := range reply {
		if strings.HasPrefix(line, "250-ServiceID=") {
			return strings.TrimPrefix(line, "250-ServiceID="), nil
		}
	}
	return "", ErrNoServiceID
}

// DelOnion removes a hidden service by its service id.
func (c *Control) DelOnion(serviceID string) error {
	_, err := c.Invoke("DEL_ONION " + serviceID)
	return err
}

// QueryHiddenServices lists the detached hidden services Tor is running.
// The reply is a line-based block:
//
//	250+onions/detached=
//	<service id>
//	...
//	.
//	250 OK
//
// with the first service id sometimes inlined after the "=".
func (c *Control) QueryHiddenServices() ([]string, error) {
	reply, err := c.Invoke("GETINFO onions/detached")
	if err != nil {
		return nil, err
	}

	var addresses []string
	listing := false
	for _, raw := range reply {
		line := strings.TrimSpace(raw)
		switch {
		case line == "250 OK" || line == ".":
			return addresses, nil
		case strings.HasPrefix(line, "250+onions/detached="):
			listing = true
			if rest := strings.TrimPrefix(line, "250+onions/detached="); rest != "" {
				addresses = append(addresses, rest)
			}
		case strings.HasPrefix(line, "250-onions/detached="):
			// Single-service replies come back as one mid line.
			if rest := strings.TrimPrefix(line, "250-onions/detached="); rest != "" {
				addresses = append(addresses, rest)
			}
		case listing:
			addresses = append(addresses, line)
		}
	}
	return addresses, nil
}

// CheckHeartbeat asks Tor to log a dump and a heartbeat and reports
// whether the control channel accepted both.
//
// TODO: consult GETINFO status/bootstrap-phase so "healthy" also means
// "bootstrapped", instead of only "control port answers".
func (c *Control) CheckHeartbeat() bool {
	if _, err := c.Invoke("SIGNAL DUMP"); err != nil {
		return false
	}
	if _, err := c.Invoke("SIGNAL HEARTBEAT"); err != nil {
		return false
	}
	return true
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
