package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const defaultKeyRefresh = 5 * time.Minute

// keySet holds the RSA signing keys published by the identity provider. Keys
// are reloaded after refreshEvery or when a token names an unknown kid.
type keySet struct {
	url          string
	client       *http.Client
	refreshEvery time.Duration

	mu     sync.Mutex
	keys   map[string]*rsa.PublicKey
	loaded time.Time
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newKeySet(url string, refreshEvery time.Duration) *keySet {
	return &keySet{
		url:          url,
		client:       &http.Client{Timeout: 10 * time.Second},
		refreshEvery: refreshEvery,
		keys:         map[string]*rsa.PublicKey{},
	}
}

func (s *keySet) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[kid]; ok && time.Since(s.loaded) < s.refreshEvery {
		return k, nil
	}
	if err := s.reload(ctx); err != nil {
		// A provider outage should not lock out tokens signed by a known key.
		if k, ok := s.keys[kid]; ok {
			return k, nil
		}
		return nil, err
	}
	k, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q is not published", kid)
	}
	return k, nil
}

// reload must be called with s.mu held.
func (s *keySet) reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch key set: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if pub, err := k.publicKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return errors.New("key set has no usable RSA keys")
	}
	s.keys, s.loaded = keys, time.Now()
	return nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if len(e) == 0 || len(e) > 4 {
		return nil, errors.New("exponent out of range")
	}
	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}
