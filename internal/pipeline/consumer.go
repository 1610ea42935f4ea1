package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/decode"
)

// sinkPollTimeout bounds each sample wait so the consumer re-checks the stop
// flag at least this often.
const sinkPollTimeout = 100 * time.Millisecond

// runConsumer pulls parsed access units from the graph sink and feeds them
// to the decoder, copying each to the recorder when one is attached. Exits
// when a stop is requested or the decoder is taken down, signaling the
// decoder's end of stream on the way out.
func (p *Pipeline) runConsumer(done chan<- struct{}) {
	defer close(done)

	sink := p.graph.Sink()
	dec := p.decoder

	maxPacket := dec.MaxPacketSize()
	if maxPacket <= 0 {
		maxPacket = 1024 * 1024
	}

	var fed, skipped, busy uint64

	for {
		p.mu.Lock()
		stop := p.stopRequested || !p.decoderRunning
		p.mu.Unlock()
		if stop {
			break
		}

		sample, ok := sink.TryPull(sinkPollTimeout)
		if !ok {
			continue
		}

		pts, havePTS := sample.PTS()
		if !havePTS {
			// Streams without presentation timestamps still carry decode
			// timestamps through the parser.
			pts, _ = sample.DTS()
		}

		data := sample.Data()
		if len(data) == 0 || len(data) > maxPacket {
			skipped++
			slog.Debug("pipeline: sample skipped", "size", len(data), "max", maxPacket)
			sample.Release()
			continue
		}

		p.recMu.Lock()
		if p.recorder != nil {
			p.recorder.HandleSample(data, pts)
		}
		p.recMu.Unlock()

		if err := dec.Feed(data, pts); err != nil {
			if errors.Is(err, decode.ErrBusy) {
				busy++
				slog.Debug("pipeline: decoder busy, sample dropped")
			} else {
				slog.Warn("pipeline: decoder feed failed", "error", err)
			}
		} else {
			fed++
			p.frames.Record(time.Now())
		}

		sample.Release()
	}

	dec.SendEOS()

	slog.Debug("pipeline: consumer exited",
		"samples_fed", fed,
		"samples_skipped", skipped,
		"decoder_busy", busy,
	)
}
