// Package poster is a short-lived image store on top of the cache. Clients
// upload a rendered share poster as a data URL and get back an id they can
// embed; the bytes live at poster:{id} for a week.
package poster

import (
	"context"
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/tarotcache"
)

const (
	DefaultTTL      = 7 * 24 * time.Hour
	DefaultMaxBytes = 5 << 20
	defaultL1Cost   = 64 << 20
)

var (
	ErrInvalidDataURL  = errors.New("poster: invalid data url")
	ErrTooLarge        = errors.New("poster: image too large")
	ErrUnsupportedType = errors.New("poster: unsupported image type")
	ErrNotFound        = errors.New("poster: not found")
	ErrUnavailable     = errors.New("poster: store unavailable")
)

var DefaultAllowedTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// Asset is the cached record.
type Asset struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
	UserID   string `json:"userId"`
}

// Image is a decoded poster ready to serve.
type Image struct {
	Bytes    []byte
	MimeType string
}

type Options struct {
	TTL          time.Duration // 0 => 7d
	MaxBytes     int           // decoded size limit; 0 => 5 MiB
	AllowedTypes []string      // nil => DefaultAllowedTypes
	L1MaxCost    int64         // bytes of decoded images kept in process; 0 => 64 MiB
	DisableL1    bool
	Logger       tarotcache.Logger
}

type Store struct {
	cache   *tarotcache.Store
	l1      *ristretto.Cache
	ttl     time.Duration
	max     int
	allowed []string
	log     tarotcache.Logger
}

func New(cache *tarotcache.Store, opts Options) (*Store, error) {
	s := &Store{
		cache:   cache,
		ttl:     opts.TTL,
		max:     opts.MaxBytes,
		allowed: opts.AllowedTypes,
		log:     opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.max <= 0 {
		s.max = DefaultMaxBytes
	}
	if s.allowed == nil {
		s.allowed = DefaultAllowedTypes
	}
	if s.log == nil {
		s.log = tarotcache.NopLogger{}
	}
	if !opts.DisableL1 {
		cost := opts.L1MaxCost
		if cost <= 0 {
			cost = defaultL1Cost
		}
		l1, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     cost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "poster: l1 cache")
		}
		s.l1 = l1
	}
	return s, nil
}

func (s *Store) Close() {
	if s.l1 != nil {
		s.l1.Close()
	}
}

func key(id string) string { return "poster:" + id }

// parseDataURL splits data:<mime>;base64,<payload> and decodes the payload.
func parseDataURL(raw string) (mime string, data []byte, b64 string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return "", nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, "", ErrInvalidDataURL
	}
	mime, ok = strings.CutSuffix(meta, ";base64")
	if !ok || mime == "" {
		return "", nil, "", errors.Wrap(ErrInvalidDataURL, "only base64 data urls are accepted")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, "", errors.Wrap(ErrInvalidDataURL, err.Error())
	}
	return strings.ToLower(mime), data, payload, nil
}

// Put validates and stores a data URL, returning the new poster id.
func (s *Store) Put(ctx context.Context, userID, dataURL string) (string, error) {
	mime, data, b64, err := parseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.Wrap(ErrInvalidDataURL, "empty image")
	}
	if len(data) > s.max {
		return "", errors.Wrapf(ErrTooLarge, "%d bytes, limit %d", len(data), s.max)
	}
	if !slices.Contains(s.allowed, mime) {
		return "", errors.Wrapf(ErrUnsupportedType, "%s", mime)
	}

	if !s.cache.Enabled() {
		return "", ErrUnavailable
	}
	id := uuid.NewString()
	s.cache.Set(ctx, key(id), Asset{Base64: b64, MimeType: mime, UserID: userID}, tarotcache.WithTTL(s.ttl))
	if !s.cache.Healthy() {
		return "", ErrUnavailable
	}
	s.log.Debug("poster stored", tarotcache.Fields{"id": id, "bytes": len(data), "mime": mime})
	return id, nil
}

// Get returns the decoded poster. Hot posters are served from memory for no
// longer than their remaining cache lifetime.
func (s *Store) Get(ctx context.Context, id string) (Image, error) {
	if s.l1 != nil {
		if v, ok := s.l1.Get(id); ok {
			return v.(Image), nil
		}
	}

	a, ok := tarotcache.Get[Asset](ctx, s.cache, key(id))
	if !ok {
		return Image{}, errors.Wrapf(ErrNotFound, "poster %s", id)
	}
	data, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return Image{}, errors.Wrapf(ErrNotFound, "poster %s: corrupt payload", id)
	}
	img := Image{Bytes: data, MimeType: a.MimeType}

	if s.l1 != nil {
		if ttl := s.cache.TTL(ctx, key(id)); ttl > 0 {
			s.l1.SetWithTTL(id, img, int64(len(data)), time.Duration(ttl)*time.Second)
		}
	}
	return img, nil
}
