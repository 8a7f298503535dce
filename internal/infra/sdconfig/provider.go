// Package sdconfig reads the generation backend settings that operators
// change at runtime. The settings live in a shared Redis key as a JSON array
// whose second element carries the Stable Diffusion section.
package sdconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"
)

// sectionIndex is the position of the Stable Diffusion block inside the array.
const sectionIndex = 1

// fetchTimeout bounds a shared reload, independent of any one caller.
const fetchTimeout = 5 * time.Second

var (
	// ErrMissing is returned when the key is absent from the cache.
	ErrMissing = errors.New("sdconfig: key not found")
	// ErrMalformed is returned when the stored blob cannot be interpreted.
	ErrMalformed = errors.New("sdconfig: malformed config")
)

// Settings is the operational configuration consumed per drawing request.
type Settings struct {
	URL            string
	Username       string
	Password       string
	ImageFrequency int
}

// Provider returns the current settings.
type Provider interface {
	Get(ctx context.Context) (Settings, error)
}

// Getter is the subset of the redis client used by RedisProvider.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisProvider caches the parsed settings for ttl and coalesces concurrent
// refreshes so a burst of requests issues a single GET.
type RedisProvider struct {
	client       Getter
	key          string
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	cached  Settings
	expires time.Time
	group   singleflight.Group
}

// NewRedisProvider constructs a provider reading key from client.
func NewRedisProvider(client Getter, key string, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, key: key, ttl: ttl, fetchTimeout: fetchTimeout, now: time.Now}
}

// Get returns cached settings when fresh, otherwise reloads them.
func (p *RedisProvider) Get(ctx context.Context) (Settings, error) {
	p.mu.RLock()
	if p.now().Before(p.expires) {
		s := p.cached
		p.mu.RUnlock()
		return s, nil
	}
	p.mu.RUnlock()

	// The reload is shared by every waiter, so the first caller's
	// cancellation must not fail the others.
	detached := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(p.key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(detached, p.fetchTimeout)
		defer cancel()
		raw, err := p.client.Get(fetchCtx, p.key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return Settings{}, ErrMissing
			}
			return Settings{}, fmt.Errorf("sdconfig: read %s: %w", p.key, err)
		}
		s, err := Parse(raw)
		if err != nil {
			return Settings{}, err
		}
		p.mu.Lock()
		p.cached = s
		p.expires = p.now().Add(p.ttl)
		p.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Static serves fixed settings.
type Static Settings

func (s Static) Get(context.Context) (Settings, error) {
	return Settings(s), nil
}

type section struct {
	URL            string          `json:"sdUrl"`
	Username       string          `json:"sdUsername"`
	Password       string          `json:"sdPassword"`
	ImageFrequency json.RawMessage `json:"sdImageFrequency"`
}

// Parse decodes the stored blob.
func Parse(raw []byte) (Settings, error) {
	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(blocks) <= sectionIndex {
		return Settings{}, fmt.Errorf("%w: expected at least %d sections, got %d", ErrMalformed, sectionIndex+1, len(blocks))
	}
	var sec section
	if err := json.Unmarshal(blocks[sectionIndex], &sec); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	url := strings.TrimRight(strings.TrimSpace(sec.URL), "/")
	if url == "" {
		return Settings{}, fmt.Errorf("%w: sdUrl is empty", ErrMalformed)
	}
	freq, err := parseFrequency(sec.ImageFrequency)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		URL:            url,
		Username:       sec.Username,
		Password:       sec.Password,
		ImageFrequency: freq,
	}, nil
}

// parseFrequency accepts a JSON number or a numeric string.
func parseFrequency(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: sdImageFrequency is missing", ErrMalformed)
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%w: sdImageFrequency %q", ErrMalformed, text)
	}
	return int(f), nil
}

// Merge writes s into the Stable Diffusion section of existing, keeping the
// other sections untouched. An empty existing blob starts a new array.
func Merge(existing []byte, s Settings) ([]byte, error) {
	var blocks []json.RawMessage
	if len(bytes.TrimSpace(existing)) > 0 {
		if err := json.Unmarshal(existing, &blocks); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	for len(blocks) <= sectionIndex {
		blocks = append(blocks, json.RawMessage(`{}`))
	}
	fields := map[string]any{}
	if err := json.Unmarshal(blocks[sectionIndex], &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	fields["sdUrl"] = s.URL
	fields["sdUsername"] = s.Username
	fields["sdPassword"] = s.Password
	fields["sdImageFrequency"] = s.ImageFrequency
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	blocks[sectionIndex] = encoded
	return json.Marshal(blocks)
}
