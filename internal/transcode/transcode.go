package transcode

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/apex/log"
)

const (
	DefaultBinary   = "ffmpeg"
	DefaultCacheTTL = time.Minute
	probeTimeout    = 10 * time.Second
)

// Prober checks whether the ffmpeg binary can be executed
type Prober struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	checked time.Time
	avail   bool
	now     func() time.Time
}

// NewProber creates a prober for the given binary. A ttl of zero probes on every call.
func NewProber(path string, ttl time.Duration) *Prober {
	if path == "" {
		path = DefaultBinary
	}

	return &Prober{
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Path returns the binary being probed
func (p *Prober) Path() string {
	return p.path
}

// Available runs "<ffmpeg> -version" and reports whether it exited cleanly
func (p *Prober) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ttl > 0 && !p.checked.IsZero() && p.now().Sub(p.checked) < p.ttl {
		return p.avail
	}

	// the cached answer is shared, so a caller going away must not decide it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()

	err := exec.CommandContext(ctx, p.path, "-version").Run()
	p.avail = err == nil
	p.checked = p.now()

	if err != nil {
		log.WithError(err).WithField("path", p.path).Debug("ffmpeg probe failed")
	}

	return p.avail
}

// Reset forgets the cached probe result
func (p *Prober) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = time.Time{}
}
