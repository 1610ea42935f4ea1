// Package ingest owns the UDP socket feeding the media processing graph.
// It converts raw datagrams into graph input buffers, applying payload-type
// filtering and an overflow-drop backpressure policy: the receive loop never
// blocks on downstream capacity, excess load is shed by dropping packets.
package ingest

import (
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
)

const (
	// maxPacketSize bounds a single datagram; RTP video packets are MTU-sized.
	maxPacketSize = 4 * 1024
	// socketBufferBytes is the kernel receive buffer target, sized to absorb
	// multi-megabyte bursts without loss while the worker catches up.
	socketBufferBytes = 8 * 1024 * 1024
	// inputLevelCeiling is the graph input queue level beyond which incoming
	// packets are dropped rather than enqueued.
	inputLevelCeiling = 8 * 1024 * 1024

	poolPrewarm  = 8
	poolCapacity = 32

	// readTimeout bounds each blocking read so the worker re-checks the stop
	// flag; Stop additionally unblocks a pending read via the read deadline.
	readTimeout = 100 * time.Millisecond
)

// PayloadTypeAny disables payload-type filtering.
const PayloadTypeAny = -1

// Stats is a snapshot of receiver counters.
type Stats struct {
	PacketsReceived  uint64
	PacketsForwarded uint64
	// PacketsFiltered counts datagrams dropped by the payload-type filter.
	PacketsFiltered uint64
	// PacketsOverflow counts datagrams dropped by the backpressure ceiling.
	PacketsOverflow uint64
	BytesReceived   uint64
	// SequenceGaps estimates upstream packet loss from RTP sequence numbers.
	SequenceGaps uint64
}

// Receiver owns the UDP socket and its worker goroutine.
type Receiver struct {
	port        int
	payloadType int
	input       mediagraph.Input
	pool        *bufferPool

	mu            sync.Mutex
	conn          *net.UDPConn
	running       bool
	stopRequested bool
	done          chan struct{}

	packetsReceived  atomic.Uint64
	packetsForwarded atomic.Uint64
	packetsFiltered  atomic.Uint64
	packetsOverflow  atomic.Uint64
	bytesReceived    atomic.Uint64
	sequenceGaps     atomic.Uint64

	lastSeq      uint16
	lastSeqValid bool
}

// NewReceiver creates a receiver for the given UDP port. payloadType is the
// expected RTP payload type, or PayloadTypeAny to accept every datagram.
func NewReceiver(port, payloadType int, input mediagraph.Input) *Receiver {
	return &Receiver{
		port:        port,
		payloadType: payloadType,
		input:       input,
		pool:        newBufferPool(maxPacketSize, poolPrewarm, poolCapacity),
	}
}

// Start binds the socket and spawns the worker. Returns an error on bind
// failure, in which case no worker is running and no socket is held.
func (r *Receiver) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.stopRequested = false
	r.mu.Unlock()

	conn, err := listenUDP(r.port)
	if err != nil {
		return fmt.Errorf("ingest: bind(%d) failed: %w", r.port, err)
	}

	if err := conn.SetReadBuffer(socketBufferBytes); err != nil {
		slog.Warn("ingest: failed to enlarge socket receive buffer", "error", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.run()

	slog.Info("ingest: receiver started",
		"port", r.LocalPort(),
		"payload_type", r.payloadType,
	)
	return nil
}

// Stop signals the worker, unblocks any pending read, and joins the worker
// before closing the socket. Idempotent: a receiver that is not running is
// left untouched.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.stopRequested = true
	conn := r.conn
	done := r.done
	r.mu.Unlock()

	// Unblock the pending read so the worker observes the stop flag.
	if conn != nil {
		conn.SetReadDeadline(time.Now())
	}
	<-done

	if conn != nil {
		conn.Close()
	}

	r.mu.Lock()
	r.conn = nil
	r.running = false
	r.stopRequested = false
	r.done = nil
	r.mu.Unlock()

	slog.Info("ingest: receiver stopped",
		"packets_received", r.packetsReceived.Load(),
		"packets_forwarded", r.packetsForwarded.Load(),
		"packets_overflow", r.packetsOverflow.Load(),
		"sequence_gaps", r.sequenceGaps.Load(),
	)
}

// Close stops the receiver and releases its resources.
func (r *Receiver) Close() {
	r.Stop()
}

// Running reports whether the worker is active.
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LocalPort returns the bound UDP port (useful when the receiver was
// configured with port 0).
func (r *Receiver) LocalPort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return r.port
	}
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived:  r.packetsReceived.Load(),
		PacketsForwarded: r.packetsForwarded.Load(),
		PacketsFiltered:  r.packetsFiltered.Load(),
		PacketsOverflow:  r.packetsOverflow.Load(),
		BytesReceived:    r.bytesReceived.Load(),
		SequenceGaps:     r.sequenceGaps.Load(),
	}
}

func (r *Receiver) run() {
	r.mu.Lock()
	conn := r.conn
	done := r.done
	r.mu.Unlock()
	defer close(done)

	// Packet ingest competes with decode and render work; pin the goroutine
	// to its OS thread and raise its scheduling priority where permitted.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	boostThreadPriority()

	scratch := make([]byte, maxPacketSize)

	for {
		r.mu.Lock()
		stop := r.stopRequested
		r.mu.Unlock()
		if stop {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDP(scratch)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.mu.Lock()
			stop = r.stopRequested
			r.mu.Unlock()
			if stop {
				return
			}
			slog.Warn("ingest: recv failed", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		r.packetsReceived.Add(1)
		r.bytesReceived.Add(uint64(n))

		if !r.payloadTypeMatches(scratch[:n]) {
			r.packetsFiltered.Add(1)
			continue
		}

		r.trackSequence(scratch[:n])

		// Backpressure: shed load here instead of queueing unboundedly or
		// stalling the read loop.
		if r.input.QueuedBytes() > inputLevelCeiling {
			r.packetsOverflow.Add(1)
			continue
		}

		buf, pooled := r.pool.acquire()
		if len(buf) < n {
			slog.Warn("ingest: dropping packet (buffer too small)", "have", len(buf), "need", n)
			r.pool.release(buf)
			continue
		}
		copy(buf, scratch[:n])

		// Ownership of the payload transfers downstream regardless of the
		// outcome; failures are logged, never retried.
		if err := r.input.Push(buf[:n]); err != nil {
			slog.Debug("ingest: graph input push failed", "error", err)
		} else {
			r.packetsForwarded.Add(1)
		}
		if pooled {
			r.pool.release(buf)
		}
	}
}

// payloadTypeMatches checks the RTP payload-type field (second header byte,
// low 7 bits) against the configured value. A receiver configured with
// PayloadTypeAny accepts everything.
func (r *Receiver) payloadTypeMatches(data []byte) bool {
	if r.payloadType < 0 {
		return true
	}
	if len(data) < 2 {
		return false
	}
	return int(data[1]&0x7F) == r.payloadType
}

// trackSequence parses the RTP header to estimate upstream loss from
// sequence-number gaps. Unparseable headers are tolerated; the datagram is
// still forwarded based on the payload-type byte alone.
func (r *Receiver) trackSequence(data []byte) {
	var hdr rtp.Header
	if _, err := hdr.Unmarshal(data); err != nil {
		return
	}
	if r.lastSeqValid {
		expected := r.lastSeq + 1
		if hdr.SequenceNumber != expected {
			gap := uint64(hdr.SequenceNumber - expected)
			// Reordered packets show up as huge wrapped gaps; ignore those.
			if gap < 0x8000 {
				r.sequenceGaps.Add(gap)
			}
		}
	}
	r.lastSeq = hdr.SequenceNumber
	r.lastSeqValid = true
}
