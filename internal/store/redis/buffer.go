package redis

import (
	"context"
	"time"
)

func (p *Publisher) bufferMessage(m message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Buffer full: drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, m)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered messages in order, bypassing the breaker.
// Messages that fail again are re-buffered.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]message, 0, 256)
	p.mu.Unlock()

	flushed := 0
	for i, m := range toFlush {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.send(ctx, m)
		cancel()
		if err != nil {
			p.log.Error().Err(err).Int("remaining", len(toFlush)-i).Msg("flush interrupted")
			p.mu.Lock()
			p.buffer = append(append([]message(nil), toFlush[i:]...), p.buffer...)
			p.mu.Unlock()
			break
		}
		flushed++
	}

	p.log.Info().Int("count", flushed).Msg("flushed buffered writes")
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// WaitFlushed blocks until the buffer is empty or timeout elapses.
func (p *Publisher) WaitFlushed(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.PendingCount() == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return p.PendingCount() == 0
}
