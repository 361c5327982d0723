package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const pendingRedirectKey = "next"

// FlashMessage represents a one-time notification stored in the browser profile.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProfileManager orchestrates the cookie that identifies a browser profile and
// the small Redis-backed bag of UI state attached to it. Authentication state
// lives in the session store, keyed by Profile.ID.
type ProfileManager struct {
	client     redis.UniversalClient
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Profile holds per-request browser profile data.
type Profile struct {
	ID        string
	values    map[string]string
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

type profilePayload struct {
	Values  map[string]string `json:"values"`
	Flashes []FlashMessage    `json:"flashes"`
}

// NewProfileManager constructs a ProfileManager.
func NewProfileManager(client redis.UniversalClient, cookieName string, ttl time.Duration, secure bool) *ProfileManager {
	return &ProfileManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Load reads the profile named by the request cookie or starts a new one.
func (pm *ProfileManager) Load(ctx context.Context, r *http.Request) (*Profile, error) {
	cookie, err := r.Cookie(pm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return pm.newProfile(), nil
		}
		return nil, err
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return pm.newProfile(), nil
	}

	payload, err := pm.client.Get(ctx, pm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			p := pm.newProfile()
			p.ID = cookie.Value
			return p, nil
		}
		return nil, err
	}

	var stored profilePayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	p := pm.newProfile()
	p.ID = cookie.Value
	p.values = stored.Values
	if p.values == nil {
		p.values = make(map[string]string)
	}
	p.flashes = stored.Flashes
	p.isNew = false
	p.dirty = false
	return p, nil
}

// Commit persists the profile and writes the cookie.
func (pm *ProfileManager) Commit(ctx context.Context, w http.ResponseWriter, p *Profile) error {
	if p == nil {
		return nil
	}
	if p.destroyed {
		if err := pm.client.Del(ctx, pm.redisKey(p.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     pm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   pm.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	if p.dirty || p.isNew {
		data, err := json.Marshal(profilePayload{Values: p.values, Flashes: p.flashes})
		if err != nil {
			return err
		}
		if err := pm.client.Set(ctx, pm.redisKey(p.ID), data, pm.ttl).Err(); err != nil {
			return err
		}
		p.dirty = false
		p.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pm.cookieName,
		Value:    p.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   pm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(pm.ttl),
	})
	return nil
}

// Destroy marks the profile for deletion on commit.
func (pm *ProfileManager) Destroy(p *Profile) {
	if p == nil {
		return
	}
	p.destroyed = true
}

// TTL exposes the configured profile lifetime.
func (pm *ProfileManager) TTL() time.Duration {
	return pm.ttl
}

// CookieName returns the cookie identifier used for profiles.
func (pm *ProfileManager) CookieName() string {
	return pm.cookieName
}

// Set stores a key-value pair.
func (p *Profile) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	p.values[key] = value
	p.dirty = true
}

// Get retrieves a value.
func (p *Profile) Get(key string) string {
	if p.values == nil {
		return ""
	}
	return p.values[key]
}

// Delete removes a value.
func (p *Profile) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.dirty = true
}

// SetPendingRedirect remembers where to send the user after login.
func (p *Profile) SetPendingRedirect(target string) {
	p.Set(pendingRedirectKey, target)
}

// TakePendingRedirect returns and forgets the remembered post-login target.
func (p *Profile) TakePendingRedirect() string {
	target := p.Get(pendingRedirectKey)
	if target != "" {
		p.Delete(pendingRedirectKey)
	}
	return target
}

// AddFlash queues a flash message.
func (p *Profile) AddFlash(msg FlashMessage) {
	p.flashes = append(p.flashes, msg)
	p.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (p *Profile) PopFlash() *FlashMessage {
	if len(p.flashes) == 0 {
		return nil
	}
	msg := p.flashes[0]
	p.flashes = p.flashes[1:]
	p.dirty = true
	return &msg
}

func (pm *ProfileManager) newProfile() *Profile {
	return &Profile{
		ID:     uuid.NewString(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (pm *ProfileManager) redisKey(id string) string {
	return "console:profile:" + id
}
