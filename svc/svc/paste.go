package svc

import (
	"context"
	"time"

	"pasteline/metrics"
	"pasteline/pkg/domain"
	"pasteline/svc/util"

	"github.com/pkg/errors"
)

// Backend is the key-value store the lifecycle manager runs on. Set replaces
// the value and clears any expiry; Expire takes whole seconds.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, seconds int64) error
	Ping(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Paste owns the paste lifecycle: creation, retrieval with view accounting,
// and lazy expiry. It keeps no state between calls; concurrent counted reads
// of one paste race and the last write wins.
type Paste struct {
	backend Backend
	pub     Publisher
	baseURL string
	maxSize int64
	now     func() time.Time
	genID   func() (string, error)
}

func NewPaste(b Backend, pub Publisher, baseURL string) *Paste {
	if b == nil {
		panic("paste service: nil backend")
	}
	return &Paste{
		backend: b,
		pub:     pub,
		baseURL: baseURL,
		now:     time.Now,
		genID:   util.GenID,
	}
}

// SetMaxSize caps content length in bytes. Zero or less means no cap.
func (p *Paste) SetMaxSize(n int64) {
	p.maxSize = n
}

// Create validates in and stores a new paste. A zero now means wall clock.
func (p *Paste) Create(ctx context.Context, in domain.CreateInput, now time.Time) (*domain.Created, error) {
	params, err := in.Params()
	if err != nil {
		metrics.ValidationFailures.Inc()
		return nil, err
	}
	if p.maxSize > 0 && int64(len(params.Content)) > p.maxSize {
		return nil, errors.Wrapf(domain.ErrPasteTooLarge, "content is %d bytes", len(params.Content))
	}
	if now.IsZero() {
		now = p.now()
	}
	id, err := p.genID()
	if err != nil {
		return nil, errors.Wrap(err, "gen id")
	}
	paste := &domain.Paste{
		ID:        id,
		Content:   params.Content,
		CreatedAt: now,
		ExpiresAt: domain.ExpiryFrom(now, params.TTLSeconds),
		MaxViews:  params.MaxViews,
	}
	raw, err := domain.EncodeRecord(paste)
	if err != nil {
		return nil, err
	}
	key := domain.Key(id)
	if err := p.backend.Set(ctx, key, raw); err != nil {
		return nil, backendErr("set", err)
	}
	if params.TTLSeconds != nil {
		if err := p.backend.Expire(ctx, key, int64(*params.TTLSeconds)); err != nil {
			return nil, backendErr("expire", err)
		}
	}
	metrics.PasteCreated.Inc()
	p.publish(ctx, domain.Event{Type: domain.EventCreated, PasteID: id, At: now, RemainingViews: params.MaxViews})
	return &domain.Created{ID: id, URL: p.URL(id)}, nil
}

// URL is the share link for id.
func (p *Paste) URL(id string) string {
	return p.baseURL + "/p/" + id
}

// Get returns the paste if it is live at now, counting the retrieval against
// its view limit when incrementView is set. Absent, expired and exhausted
// pastes all yield domain.ErrPasteNotFound. A zero now means wall clock.
func (p *Paste) Get(ctx context.Context, id string, incrementView bool, now time.Time) (*domain.View, error) {
	if now.IsZero() {
		now = p.now()
	}
	key := domain.Key(id)
	raw, ok, err := p.backend.Get(ctx, key)
	if err != nil {
		return nil, backendErr("get", err)
	}
	if !ok {
		metrics.PasteNotFound.WithLabelValues(metrics.ReasonAbsent).Inc()
		return nil, domain.ErrPasteNotFound
	}
	paste, err := domain.DecodeRecord(raw)
	if err != nil {
		util.Error().Err(err).Str("paste_id", id).Msg("undecodable paste record")
		return nil, err
	}
	if !paste.Live(now) {
		reason := metrics.ReasonExhausted
		if paste.Expired(now) {
			reason = metrics.ReasonExpired
		}
		p.purge(ctx, key, id, reason, now)
		return nil, domain.ErrPasteNotFound
	}

	effective := paste.ViewCount
	if incrementView {
		effective, err = p.countView(ctx, key, paste, now)
		if err != nil {
			return nil, err
		}
	}
	view := paste.View(effective)
	metrics.PasteRetrieved.WithLabelValues(boolLabel(incrementView)).Inc()
	if incrementView {
		ev := domain.Event{Type: domain.EventViewed, PasteID: id, At: now, RemainingViews: view.RemainingViews}
		if view.RemainingViews != nil && *view.RemainingViews == 0 {
			ev.Type = domain.EventBurned
		}
		p.publish(ctx, ev)
	}
	return view, nil
}

// countView applies one counted retrieval and returns the new count. The
// final permitted view deletes the record; any other rewrites it and puts
// the backend TTL back, since Set drops it.
func (p *Paste) countView(ctx context.Context, key string, paste *domain.Paste, now time.Time) (int, error) {
	newCount := paste.ViewCount + 1
	if paste.MaxViews != nil && newCount >= *paste.MaxViews {
		if err := p.backend.Del(ctx, key); err != nil {
			return 0, backendErr("del", err)
		}
		metrics.PasteBurned.Inc()
		return newCount, nil
	}
	updated := *paste
	updated.ViewCount = newCount
	raw, err := domain.EncodeRecord(&updated)
	if err != nil {
		return 0, err
	}
	if err := p.backend.Set(ctx, key, raw); err != nil {
		return 0, backendErr("set", err)
	}
	if paste.ExpiresAt != nil {
		ttl := remainingSeconds(*paste.ExpiresAt, now)
		if err := p.backend.Expire(ctx, key, ttl); err != nil {
			// The record is already rewritten; the read-time check still enforces expiry.
			metrics.BackendErrors.WithLabelValues("expire").Inc()
			util.Warn().Err(err).Str("paste_id", paste.ID).Int64("ttl", ttl).Msg("failed to restore backend ttl")
		}
	}
	return newCount, nil
}

// purge drops a record found dead on read. Failure is logged only: the
// caller's answer is not found either way.
func (p *Paste) purge(ctx context.Context, key, id, reason string, now time.Time) {
	metrics.PasteNotFound.WithLabelValues(reason).Inc()
	if err := p.backend.Del(ctx, key); err != nil {
		metrics.BackendErrors.WithLabelValues("del").Inc()
		util.Warn().Err(err).Str("paste_id", id).Str("reason", reason).Msg("failed to purge dead paste")
		return
	}
	p.publish(ctx, domain.Event{Type: domain.EventBurned, PasteID: id, At: now})
}

func (p *Paste) publish(ctx context.Context, ev domain.Event) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(ctx, ev); err != nil {
		metrics.EventPublishErrors.Inc()
		util.Warn().Err(err).Str("paste_id", ev.PasteID).Str("event", string(ev.Type)).Msg("failed to publish event")
	}
}

// Ping reports backend liveness without touching paste data.
func (p *Paste) Ping(ctx context.Context) error {
	return p.backend.Ping(ctx)
}

// remainingSeconds is ceil((expiresAt-now)/1s) at millisecond precision,
// never negative. Millisecond math stays in range for any accepted TTL.
func remainingSeconds(expiresAt, now time.Time) int64 {
	ms := expiresAt.UnixMilli() - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}

func backendErr(op string, err error) error {
	metrics.BackendErrors.WithLabelValues(op).Inc()
	util.Error().Err(err).Str("op", op).Msg("backend operation failed")
	return errors.Wrapf(domain.ErrBackendUnavailable, "%s: %v", op, err)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
