// Package rendezvous lets two participants who never talk to each other
// converge on one shared reading, using nothing but TTL-scoped cache keys.
//
// Keys per session (all under the store's default prefix):
//
//	relationship:session:{id}:creator  {userId}
//	relationship:session:{id}:A        creator's submission
//	relationship:session:{id}:B        the other participant's submission
//	relationship:session:{id}:lock     compute-once flag
//	relationship:session:{id}:result   the merged reading
//
// Slot A belongs to whoever created the session, so arrival order does not
// matter. Slot B is claimed with SETNX and never handed to a third user. When
// both slots are filled the lock picks exactly one request to run the
// interpreter; everyone else waits briefly for the result or keeps polling.
package rendezvous

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/internal/interpret"
)

const (
	DefaultSessionTTL   = 600 * time.Second
	DefaultComputeWait  = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	defaultLockTTL      = 30 * time.Second

	CardsPerSubmission = 3

	// CompletedKey counts sessions that produced a result.
	CompletedKey = "relationship:completed"

	slotCreator = "creator"
	slotA       = "A"
	slotB       = "B"
	slotLock    = "lock"
	slotResult  = "result"
)

var (
	ErrSessionNotFound   = errors.New("rendezvous: session not found")
	ErrSessionFull       = errors.New("rendezvous: session already has two participants")
	ErrInvalidSubmission = errors.New("rendezvous: invalid submission")
	ErrUnavailable       = errors.New("rendezvous: session store unavailable")
)

// Identity is how a participant is shown to the other side.
type Identity struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Directory looks up display identities. Unknown ids are simply absent.
type Directory interface {
	Identities(ctx context.Context, userIDs ...string) (map[string]Identity, error)
}

type creator struct {
	UserID string `json:"userId"`
}

type Submission struct {
	UserID   string                    `json:"userId"`
	Cards    []interpret.CardSelection `json:"cards"`
	Question string                    `json:"question"`
}

type Status struct {
	Ready  bool              `json:"ready"`
	Result *interpret.Result `json:"result"`
}

type Meta struct {
	SessionID string   `json:"sessionId"`
	Creator   Identity `json:"creator"`
	ExpiresIn int64    `json:"expiresIn"`
}

type Participant struct {
	Submission
	Identity *Identity `json:"identity,omitempty"`
}

type Detail struct {
	SessionID string            `json:"sessionId"`
	A         *Participant      `json:"A"`
	B         *Participant      `json:"B"`
	Result    *interpret.Result `json:"result"`
}

type Options struct {
	Interpreter  interpret.Interpreter // required
	Directory    Directory             // nil => identities omitted
	Logger       tarotcache.Logger
	SessionTTL   time.Duration // 0 => 600s
	ComputeWait  time.Duration // how long a losing submitter waits for the result; 0 => 2s
	PollInterval time.Duration // 0 => 100ms
	Now          func() time.Time
}

type Service struct {
	store   *tarotcache.Store
	interp  interpret.Interpreter
	dir     Directory
	log     tarotcache.Logger
	ttl     time.Duration
	lockTTL time.Duration
	wait    time.Duration
	poll    time.Duration
	now     func() time.Time
}

func New(store *tarotcache.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("rendezvous: store is required")
	}
	if opts.Interpreter == nil {
		return nil, errors.New("rendezvous: interpreter is required")
	}
	s := &Service{
		store:  store,
		interp: opts.Interpreter,
		dir:    opts.Directory,
		log:    opts.Logger,
		ttl:    opts.SessionTTL,
		wait:   opts.ComputeWait,
		poll:   opts.PollInterval,
		now:    opts.Now,
	}
	if s.log == nil {
		s.log = tarotcache.NopLogger{}
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.wait <= 0 {
		s.wait = DefaultComputeWait
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.lockTTL = min(defaultLockTTL, s.ttl)
	return s, nil
}

func key(id, slot string) string {
	return "relationship:session:" + id + ":" + slot
}

func (s *Service) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("rel_%d_%s", s.now().UnixMilli(), suffix)
}

// Create opens a session owned by creatorID and returns its id.
func (s *Service) Create(ctx context.Context, creatorID string) (string, error) {
	if creatorID == "" {
		return "", errors.Wrap(ErrInvalidSubmission, "missing creator")
	}
	ttl := tarotcache.WithTTL(s.ttl)
	for attempt := 0; attempt < 5; attempt++ {
		id := s.newID()
		if s.store.SetNX(ctx, key(id, slotCreator), creator{UserID: creatorID}, ttl) {
			s.log.Info("relationship session created", tarotcache.Fields{"session": id, "creator": creatorID})
			return id, nil
		}
		if !s.store.Healthy() {
			return "", ErrUnavailable
		}
		// id collision: draw again
	}
	return "", errors.Wrap(ErrUnavailable, "could not allocate a session id")
}

func (s *Service) loadCreator(ctx context.Context, id string) (creator, error) {
	c, ok := tarotcache.Get[creator](ctx, s.store, key(id, slotCreator))
	if !ok || c.UserID == "" {
		return creator{}, errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return c, nil
}

// Meta returns the creator and how many seconds the session has left.
func (s *Service) Meta(ctx context.Context, id string) (Meta, error) {
	c, err := s.loadCreator(ctx, id)
	if err != nil {
		return Meta{}, err
	}
	m := Meta{
		SessionID: id,
		Creator:   Identity{UserID: c.UserID},
		ExpiresIn: s.store.TTL(ctx, key(id, slotCreator)),
	}
	if ident, ok := s.identities(ctx, c.UserID)[c.UserID]; ok {
		m.Creator = ident
	}
	return m, nil
}

// Submit records sub for session id and, when it completes the pair, runs
// the shared interpretation exactly once.
func (s *Service) Submit(ctx context.Context, id string, sub Submission) (Status, error) {
	c, err := s.loadCreator(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if res, ok := s.result(ctx, id); ok {
		return Status{Ready: true, Result: res}, nil
	}
	if sub.UserID == "" || len(sub.Cards) != CardsPerSubmission {
		return Status{}, errors.Wrapf(ErrInvalidSubmission, "need %d cards from an identified user", CardsPerSubmission)
	}

	ttl := tarotcache.WithTTL(s.ttl)
	slot, other := slotA, slotB
	if sub.UserID != c.UserID {
		slot, other = slotB, slotA
	}
	if slot == slotA {
		s.store.Set(ctx, key(id, slotA), sub, ttl)
	} else if err := s.claimB(ctx, id, sub); err != nil {
		return Status{}, err
	}

	// keep the whole session alive for another TTL after any activity
	s.store.Expire(ctx, key(id, slotCreator), s.ttl)
	s.store.Expire(ctx, key(id, other), s.ttl)

	subs := tarotcache.MGet[Submission](ctx, s.store, []string{key(id, slotA), key(id, slotB)})
	if subs[0] == nil || subs[1] == nil {
		return Status{Ready: false}, nil
	}
	return s.complete(ctx, id, *subs[0], *subs[1])
}

func (s *Service) claimB(ctx context.Context, id string, sub Submission) error {
	k := key(id, slotB)
	ttl := tarotcache.WithTTL(s.ttl)
	for attempt := 0; attempt < 2; attempt++ {
		if s.store.SetNX(ctx, k, sub, ttl) {
			return nil
		}
		owner, ok := tarotcache.Get[Submission](ctx, s.store, k)
		if !ok {
			continue // expired between the two calls
		}
		if owner.UserID != sub.UserID {
			s.log.Warn("relationship session rejected third participant",
				tarotcache.Fields{"session": id, "user": sub.UserID})
			return errors.Wrapf(ErrSessionFull, "session %s", id)
		}
		s.store.Set(ctx, k, sub, ttl) // resubmission by the same participant
		return nil
	}
	return errors.Wrapf(ErrSessionFull, "session %s", id)
}

func (s *Service) complete(ctx context.Context, id string, a, b Submission) (Status, error) {
	lock := key(id, slotLock)
	if !s.store.SetNX(ctx, lock, s.now().UnixMilli(), tarotcache.WithTTL(s.lockTTL)) {
		return s.awaitResult(ctx, id)
	}

	cards := make([]interpret.CardSelection, 0, len(a.Cards)+len(b.Cards))
	cards = append(cards, a.Cards...)
	cards = append(cards, b.Cards...)

	res, err := s.interp.Interpret(ctx, interpret.Request{
		Spread:    "relationship",
		Questions: []string{a.Question, b.Question},
		Cards:     cards,
	})
	if err != nil {
		s.store.Del(ctx, lock) // let the next submit or poll retry
		return Status{}, errors.Wrapf(err, "rendezvous: interpret session %s", id)
	}

	s.store.Set(ctx, key(id, slotResult), res, tarotcache.WithTTL(s.ttl))
	n := s.store.Incr(ctx, CompletedKey)
	s.log.Info("relationship session completed", tarotcache.Fields{"session": id, "completed_total": n})
	return Status{Ready: true, Result: &res}, nil
}

// awaitResult waits up to ComputeWait for another request's computation.
func (s *Service) awaitResult(ctx context.Context, id string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		if res, ok := s.result(ctx, id); ok {
			return Status{Ready: true, Result: res}, nil
		}
		select {
		case <-ctx.Done():
			return Status{Ready: false}, nil
		case <-t.C:
		}
	}
}

func (s *Service) result(ctx context.Context, id string) (*interpret.Result, bool) {
	res, ok := tarotcache.Get[interpret.Result](ctx, s.store, key(id, slotResult))
	if !ok {
		return nil, false
	}
	return &res, true
}

// Poll reports whether the reading is ready. Unknown and expired sessions
// read as not ready.
func (s *Service) Poll(ctx context.Context, id string) Status {
	if res, ok := s.result(ctx, id); ok {
		return Status{Ready: true, Result: res}
	}
	return Status{Ready: false}
}

// Detail assembles both submissions, their display identities and the
// result when present.
func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	_, creatorErr := s.loadCreator(ctx, id)
	subs := tarotcache.MGet[Submission](ctx, s.store, []string{key(id, slotA), key(id, slotB)})
	res, _ := s.result(ctx, id)
	if creatorErr != nil && subs[0] == nil && subs[1] == nil && res == nil {
		return Detail{}, creatorErr
	}

	d := Detail{SessionID: id, Result: res}
	var ids []string
	for _, sub := range subs {
		if sub != nil {
			ids = append(ids, sub.UserID)
		}
	}
	idents := s.identities(ctx, ids...)
	wrap := func(sub *Submission) *Participant {
		if sub == nil {
			return nil
		}
		p := &Participant{Submission: *sub}
		if ident, ok := idents[sub.UserID]; ok {
			p.Identity = &ident
		}
		return p
	}
	d.A, d.B = wrap(subs[0]), wrap(subs[1])
	return d, nil
}

func (s *Service) identities(ctx context.Context, ids ...string) map[string]Identity {
	if s.dir == nil || len(ids) == 0 {
		return nil
	}
	out, err := s.dir.Identities(ctx, ids...)
	if err != nil {
		s.log.Warn("participant lookup failed", tarotcache.Fields{"err": err.Error()})
		return nil
	}
	return out
}

// Completed returns how many sessions have produced a result.
func (s *Service) Completed(ctx context.Context) int64 {
	return s.store.Counter(ctx, CompletedKey)
}
