package p2p

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	klog "github.com/shroudnet/shroud-node/internal/log"
)

// Connection loop tuning.
const (
	// PingInterval is how long a connection may stay silent before we
	// ping it.
	PingInterval = 10 * time.Second

	// silentTimeout is how long a connection may stay silent before we
	// give up on it entirely.
	silentTimeout = 4 * PingInterval

	// pollTimeout is the per-iteration read deadline; it bounds how long
	// the loop waits before re-checking the terminate flag and the send
	// queue.
	pollTimeout = time.Second

	// frameTimeout bounds reading the remainder of a frame once its
	// first byte has arrived, and all writes.
	frameTimeout = 20 * time.Second

	// sendQueueCap bounds the outbound FIFO; enqueues beyond it are
	// dropped with a warning.
	sendQueueCap = 64

	// sendBurst caps how many queued messages one loop iteration writes.
	sendBurst = 8
)

var errPollTimeout = errors.New("poll timeout")

// Processor consumes one decoded frame from a connection and returns a
// dispatch status.
type Processor interface {
	ProcessMessage(c *Conn, raw *RawMessage) Status
}

// ProcessorRef is a non-owning handle to the processor. The processor
// outlives connections; the ref returns nil once it is gone and the
// connection shuts down.
type ProcessorRef func() Processor

// Conn is one established peer session. It owns the socket and the send
// queue, and runs a single dedicated loop goroutine from Start until the
// terminate flag is observed.
type Conn struct {
	id    uint64
	conn  net.Conn
	br    *bufio.Reader
	peer  *ConnectedPeer
	magic [2]byte

	sendQueue chan Message
	terminate atomic.Bool
	done      chan struct{}

	inMeter  *RateMeter
	outMeter *RateMeter
	rateCap  uint64 // bytes/second per direction; 0 disables

	chain     ChainInfo
	processor ProcessorRef
	banMgr    *BanManager
	onExit    func(*Conn)

	mu              sync.Mutex
	totalDifficulty uint64
	height          uint64
	lastReceived    time.Time
	lastPing        time.Time
	banReason       BanReason

	writeMu sync.Mutex // serializes socket writes (loop thread and SendMsg callers)
	logger  zerolog.Logger
}

// NewConn wraps a handshaken socket in a connection. Call Start to run the
// loop.
func NewConn(id uint64, conn net.Conn, peer *ConnectedPeer, magic [2]byte, rateCap uint64,
	chain ChainInfo, processor ProcessorRef, banMgr *BanManager, onExit func(*Conn)) *Conn {

	c := &Conn{
		id:              id,
		conn:            conn,
		br:              bufio.NewReader(conn),
		peer:            peer,
		magic:           magic,
		sendQueue:       make(chan Message, sendQueueCap),
		done:            make(chan struct{}),
		inMeter:         NewRateMeter(),
		outMeter:        NewRateMeter(),
		rateCap:         rateCap,
		chain:           chain,
		processor:       processor,
		banMgr:          banMgr,
		onExit:          onExit,
		totalDifficulty: peer.TotalDifficulty,
		height:          peer.Height,
		lastReceived:    time.Now(),
		logger:          klog.P2P.With().Uint64("conn", id).Str("peer", peer.Addr).Logger(),
	}
	return c
}

// Start launches the connection's loop goroutine.
func (c *Conn) Start() {
	go c.loop()
}

// ID returns the connection id assigned by the manager.
func (c *Conn) ID() uint64 { return c.id }

// Peer returns the handshake result for this connection.
func (c *Conn) Peer() *ConnectedPeer { return c.peer }

// Addr returns the remote ip:port.
func (c *Conn) Addr() string { return c.peer.Addr }

// Version returns the negotiated protocol version.
func (c *Conn) Version() uint32 { return c.peer.Version }

// UpdateTotals records the peer's advertised difficulty and height.
func (c *Conn) UpdateTotals(totalDifficulty, height uint64) {
	c.mu.Lock()
	c.totalDifficulty = totalDifficulty
	c.height = height
	c.mu.Unlock()
}

// TotalDifficulty returns the peer's last advertised total difficulty.
func (c *Conn) TotalDifficulty() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalDifficulty
}

// Height returns the peer's last advertised height.
func (c *Conn) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// LastActivity returns when the peer last sent us anything.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReceived
}

// IsActive reports whether the loop is still running.
func (c *Conn) IsActive() bool {
	select {
	case <-c.done:
		return false
	default:
		return !c.terminate.Load()
	}
}

// Disconnect sets the terminate flag. With wait, it blocks until the loop
// goroutine has exited and released the socket.
func (c *Conn) Disconnect(wait bool) {
	c.terminate.Store(true)
	if wait {
		<-c.done
	}
}

// AddToSendQueue enqueues a message on the bounded outbound FIFO. Messages
// are delivered in enqueue order. A full queue drops the message with a
// warning rather than blocking the caller.
func (c *Conn) AddToSendQueue(msg Message) {
	select {
	case c.sendQueue <- msg:
	default:
		c.logger.Warn().
			Str("msg", msg.Type().String()).
			Msg("Send queue full, dropping message")
	}
}

// SendMsg synchronously serializes and writes a message to the socket.
// Returns false on I/O failure.
func (c *Conn) SendMsg(msg Message) bool {
	frame, err := encodeFrame(c.magic, msg, c.peer.Version)
	if err != nil {
		c.logger.Error().Err(err).Str("msg", msg.Type().String()).Msg("Message encode failed")
		return false
	}

	c.writeMu.Lock()
	err = c.conn.SetWriteDeadline(time.Now().Add(frameTimeout))
	if err == nil {
		_, err = c.conn.Write(frame)
	}
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debug().Err(err).Str("msg", msg.Type().String()).Msg("Message write failed")
		return false
	}
	c.outMeter.Record(uint64(len(frame)))
	return true
}

// ExceedsRateLimit reports whether either direction's observed byte rate
// exceeds the configured cap over the rolling window.
func (c *Conn) ExceedsRateLimit() bool {
	if c.rateCap == 0 {
		return false
	}
	return c.inMeter.Rate() > c.rateCap || c.outMeter.Rate() > c.rateCap
}

// BanPeer marks the connection for termination with a reason that is
// persisted on exit, tells the peer why, and closes the socket promptly.
func (c *Conn) BanPeer(reason BanReason) {
	c.mu.Lock()
	c.banReason = reason
	c.mu.Unlock()

	c.SendMsg(&BanReasonMessage{Reason: reason})
	c.terminate.Store(true)
	c.conn.Close()
}

// loop is the connection's single dedicated goroutine: drain the send
// queue, poll for one inbound frame, dispatch it, keep the peer alive with
// pings, and terminate on failure.
func (c *Conn) loop() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Connection loop panicked")
		}
		c.cleanup()
	}()

	for !c.terminate.Load() {
		if !c.drainSendQueue() {
			break
		}

		raw, err := c.readOne()
		switch {
		case err == nil:
			c.mu.Lock()
			c.lastReceived = time.Now()
			c.mu.Unlock()

			proc := c.processor()
			if proc == nil {
				c.logger.Debug().Msg("Message processor gone, closing connection")
				return
			}
			status := proc.ProcessMessage(c, raw)
			if status == StatusSocketFailure || status == StatusDisconnect {
				c.logger.Debug().Str("status", status.String()).Msg("Processor requested termination")
				return
			}
		case errors.Is(err, errPollTimeout):
			// Nothing to read this iteration.
		default:
			c.logger.Debug().Err(err).Msg("Socket read failed")
			return
		}

		c.checkLiveness()
	}
}

// readOne polls for a frame: a short deadline on the first byte keeps the
// loop responsive, then the rest of the frame gets the full frame timeout.
func (c *Conn) readOne() (*RawMessage, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.br.Peek(1); err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errPollTimeout
		}
		return nil, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		return nil, err
	}
	raw, err := ReadMessage(c.br, c.magic)
	if err != nil {
		return nil, err
	}
	c.inMeter.Record(uint64(frameHeaderSize + len(raw.Payload)))
	return raw, nil
}

// drainSendQueue writes up to sendBurst queued messages in enqueue order.
// A write failure escalates to terminate.
func (c *Conn) drainSendQueue() bool {
	for i := 0; i < sendBurst; i++ {
		select {
		case msg := <-c.sendQueue:
			if !c.SendMsg(msg) {
				c.terminate.Store(true)
				return false
			}
		default:
			return true
		}
	}
	return true
}

// checkLiveness pings a quiet peer and terminates one that has been silent
// past the timeout.
func (c *Conn) checkLiveness() {
	c.mu.Lock()
	silent := time.Since(c.lastReceived)
	pingDue := silent > PingInterval && time.Since(c.lastPing) > PingInterval
	if pingDue {
		c.lastPing = time.Now()
	}
	c.mu.Unlock()

	if silent > silentTimeout {
		c.logger.Debug().Dur("silent", silent).Msg("Peer unresponsive, disconnecting")
		c.terminate.Store(true)
		return
	}
	if pingDue {
		c.AddToSendQueue(&Ping{
			TotalDifficulty: c.chain.TotalDifficulty(),
			Height:          c.chain.Height(),
		})
	}
}

// cleanup runs on every loop exit path: close the socket, persist any ban,
// and deregister from the manager.
func (c *Conn) cleanup() {
	c.terminate.Store(true)
	c.conn.Close()

	c.mu.Lock()
	reason := c.banReason
	c.mu.Unlock()
	if reason != BanNone && c.banMgr != nil {
		c.banMgr.Ban(hostOf(c.peer.Addr), reason)
	}

	if c.onExit != nil {
		c.onExit(c)
	}
	close(c.done)
	c.logger.Debug().Msg("Connection closed")
}

// hostOf strips the ephemeral port: bans apply to the host.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
