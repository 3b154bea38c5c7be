package tor

import (
	"bufio"
	"crypto/ed25519"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
)

// fakeTor is a scripted control-port server good for one client.
type fakeTor struct {
	ln       net.Listener
	mu       sync.Mutex
	commands []string
	detached []string
	refuse   bool // answer every command with an error code
}

func newFakeTor(t *testing.T) *fakeTor {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeTor{ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeTor) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeTor) sawCommand(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cmd := range f.commands {
		if strings.HasPrefix(cmd, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeTor) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		refuse := f.refuse
		detached := append([]string(nil), f.detached...)
		f.mu.Unlock()

		if refuse {
			fmt.Fprintf(conn, "550 refused\r\n")
			continue
		}

		switch {
		case strings.HasPrefix(cmd, "AUTHENTICATE"):
			fmt.Fprintf(conn, "250 OK\r\n")
		case cmd == "GETINFO onions/detached":
			fmt.Fprintf(conn, "250+onions/detached=\r\n")
			for _, svc := range detached {
				fmt.Fprintf(conn, "%s\r\n", svc)
			}
			fmt.Fprintf(conn, ".\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "ADD_ONION"):
			fmt.Fprintf(conn, "250-ServiceID=fakeservicexyz\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "DEL_ONION"):
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "SIGNAL"):
			fmt.Fprintf(conn, "250 OK\r\n")
		default:
			fmt.Fprintf(conn, "510 Unrecognized command\r\n")
		}
	}
}

func testSeed(name string) []byte {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, name)
	return seed
}

func TestConnect_Authenticates(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "hunter2")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	if !f.sawCommand(`AUTHENTICATE "hunter2"`) {
		t.Error("client must authenticate with the configured password")
	}
}

func TestConnect_RefusedAuth(t *testing.T) {
	f := newFakeTor(t)
	f.mu.Lock()
	f.refuse = true
	f.mu.Unlock()
	if _, err := Connect(f.addr(), ""); err == nil {
		t.Error("refused authentication must fail Connect")
	}
}

func TestQueryHiddenServices_Parser(t *testing.T) {
	f := newFakeTor(t)
	f.detached = []string{"serviceone", "servicetwo"}

	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	services, err := c.QueryHiddenServices()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(services) != 2 || services[0] != "serviceone" || services[1] != "servicetwo" {
		t.Errorf("parsed %v, want [serviceone servicetwo]", services)
	}
}

func TestQueryHiddenServices_Empty(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	services, err := c.QueryHiddenServices()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(services) != 0 {
		t.Errorf("want no services, got %v", services)
	}
}

func TestAddOnion_Publishes(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	svc, err := c.AddOnion(testSeed("publish"), 13414, 13414)
	if err != nil {
		t.Fatalf("add onion: %v", err)
	}
	if svc != "fakeservicexyz" {
		t.Errorf("service id %q, want fakeservicexyz", svc)
	}
	if !f.sawCommand("ADD_ONION ED25519-V3:") {
		t.Error("ADD_ONION must carry an ED25519-V3 key blob")
	}

	f.mu.Lock()
	var addCmd string
	for _, cmd := range f.commands {
		if strings.HasPrefix(cmd, "ADD_ONION") {
			addCmd = cmd
		}
	}
	f.mu.Unlock()
	if !strings.Contains(addCmd, "Flags=DiscardPK,Detach") {
		t.Errorf("ADD_ONION missing flags: %s", addCmd)
	}
	if !strings.Contains(addCmd, "Port=13414,13414") {
		t.Errorf("ADD_ONION missing port mapping: %s", addCmd)
	}
}

func TestAddOnion_IdempotentWhenDetached(t *testing.T) {
	seed := testSeed("idempotent")
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	existing := ServiceID(pub)

	f := newFakeTor(t)
	f.detached = []string{existing}

	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	svc, err := c.AddOnion(seed, 13414, 13414)
	if err != nil {
		t.Fatalf("add onion: %v", err)
	}
	if svc != existing {
		t.Errorf("should return the already-detached address, got %q", svc)
	}
	if f.sawCommand("ADD_ONION") {
		t.Error("ADD_ONION must not be issued when the service is already detached")
	}
}

func TestAddOnion_BadSeed(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	if _, err := c.AddOnion([]byte{1, 2, 3}, 1, 1); err == nil {
		t.Error("a short seed must be rejected")
	}
}

func TestCheckHeartbeat(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	if !c.CheckHeartbeat() {
		t.Error("heartbeat should succeed against a healthy control port")
	}
	if !f.sawCommand("SIGNAL DUMP") || !f.sawCommand("SIGNAL HEARTBEAT") {
		t.Error("heartbeat must issue SIGNAL DUMP and SIGNAL HEARTBEAT")
	}

	f.mu.Lock()
	f.refuse = true
	f.mu.Unlock()
	if c.CheckHeartbeat() {
		t.Error("heartbeat should fail when the control port refuses")
	}
}

func TestDelOnion(t *testing.T) {
	f := newFakeTor(t)
	c, err := Connect(f.addr(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.conn.Close()

	if err := c.DelOnion("someservice"); err != nil {
		t.Fatalf("del onion: %v", err)
	}
	if !f.sawCommand("DEL_ONION someservice") {
		t.Error("DEL_ONION must name the service id")
	}
}
