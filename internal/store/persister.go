package store

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

type record struct {
	kind  string
	write func(ctx context.Context) error
}

// Persister queues records for a background writer. Enqueue never blocks:
// a full queue drops the record with a warning.
type Persister struct {
	store *Store
	queue chan record
	done  chan struct{}
}

func NewPersister(s *Store, size int) *Persister {
	if size <= 0 {
		size = 1024
	}
	return &Persister{
		store: s,
		queue: make(chan record, size),
		done:  make(chan struct{}),
	}
}

func (p *Persister) enqueue(r record) {
	select {
	case p.queue <- r:
	default:
		log.Warn().Str("module", "store").Str("kind", r.kind).Msg("persist queue full, record dropped")
	}
}

func (p *Persister) AppendMessage(m domain.ChatMessage) {
	p.enqueue(record{kind: "message", write: func(ctx context.Context) error { return p.store.AppendMessage(ctx, m) }})
}

func (p *Persister) AppendEdit(e domain.MessageEdit) {
	p.enqueue(record{kind: "edit", write: func(ctx context.Context) error { return p.store.AppendEdit(ctx, e) }})
}

func (p *Persister) AppendReaction(r domain.Reaction) {
	p.enqueue(record{kind: "reaction", write: func(ctx context.Context) error { return p.store.AppendReaction(ctx, r) }})
}

// Run writes queued records until ctx is done, then drains what is left.
func (p *Persister) Run(ctx context.Context) error {
	defer close(p.done)
	for {
		select {
		case r := <-p.queue:
			p.write(r)
		case <-ctx.Done():
			for {
				select {
				case r := <-p.queue:
					p.write(r)
				default:
					return nil
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (p *Persister) Done() <-chan struct{} { return p.done }

func (p *Persister) write(r record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.write(ctx); err != nil {
		log.Error().Err(err).Str("module", "store").Str("kind", r.kind).Msg("persist failed")
	}
}
