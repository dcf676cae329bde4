// Package resolver locates credentials across the sources a consumer
// may have available: a configured auth service, the default local auth
// service, and the encrypted file store. The priority is
// explicit-config > well-known-local > durable-fallback, and every call
// re-resolves because the auth service may come and go across the
// process's lifetime.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/parentsync/parentsync/pkg/credentials"
	"github.com/parentsync/parentsync/pkg/credentials/store"
	"github.com/parentsync/parentsync/pkg/logging"
)

// DefaultAuthServiceURL is the well-known address of a locally running
// auth service.
const DefaultAuthServiceURL = "http://localhost:8100"

const (
	healthPath = "/api/health"
	cookiePath = "/api/cookies"

	probeTimeout = 5 * time.Second
	fetchTimeout = 10 * time.Second
)

// Source identifies where a bundle was resolved from.
type Source int

const (
	// SourceNone means no source had credentials.
	SourceNone Source = iota
	// SourceRemote means an auth service served the bundle over HTTP.
	SourceRemote
	// SourceFile means the bundle came from the local encrypted store.
	SourceFile
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceFile:
		return "file"
	default:
		return "none"
	}
}

// FileStore is the slice of the credential store the resolver needs.
type FileStore interface {
	Exists() bool
	Load() (credentials.Bundle, error)
}

// Resolver fetches credentials from the best available source.
type Resolver struct {
	authURL    string
	defaultURL string
	store      FileStore
	httpClient *http.Client
	csrfCookie string
	log        *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the HTTP client used for probes and fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.httpClient = c }
}

// WithDefaultURL overrides the well-known local auth service address.
func WithDefaultURL(url string) Option {
	return func(r *Resolver) { r.defaultURL = url }
}

// WithCSRFCookie overrides the cookie name used by Available to judge
// whether a bundle is usable.
func WithCSRFCookie(name string) Option {
	return func(r *Resolver) { r.csrfCookie = name }
}

// New creates a resolver. authURL is the explicitly configured auth
// service address and may be empty; fileStore may be nil when no local
// store is configured.
func New(authURL string, fileStore FileStore, log *logging.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		authURL:    authURL,
		defaultURL: DefaultAuthServiceURL,
		store:      fileStore,
		httpClient: &http.Client{},
		csrfCookie: credentials.DefaultCSRFCookieName,
		log:        log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches credentials from the highest-priority live source.
// An unreachable or empty remote source falls through to the next one;
// a store read failure other than "not found" propagates, so corruption
// is never silently read as missing credentials.
func (r *Resolver) Resolve(ctx context.Context) (Source, credentials.Bundle, error) {
	if r.authURL != "" {
		if bundle, ok := r.tryRemote(ctx, r.authURL); ok {
			return SourceRemote, bundle, nil
		}
		r.log.Warnf("configured auth service %s has no credentials, falling through", r.authURL)
	}

	if r.defaultURL != "" && r.defaultURL != r.authURL {
		if bundle, ok := r.tryRemote(ctx, r.defaultURL); ok {
			return SourceRemote, bundle, nil
		}
	}

	if r.store != nil && r.store.Exists() {
		bundle, err := r.store.Load()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return SourceNone, credentials.Bundle{}, nil
			}
			return SourceNone, credentials.Bundle{}, fmt.Errorf("resolve from file store: %w", err)
		}
		if !bundle.Empty() {
			return SourceFile, bundle, nil
		}
	}

	return SourceNone, credentials.Bundle{}, nil
}

// Available reports whether Resolve would yield a usable, CSRF-bearing
// bundle. It performs a real fetch rather than just a liveness probe,
// since a live source may still hold nothing.
func (r *Resolver) Available(ctx context.Context) bool {
	source, bundle, err := r.Resolve(ctx)
	if err != nil || source == SourceNone {
		return false
	}
	return bundle.Usable(r.csrfCookie)
}

// DetectSource reports the highest-priority live source without
// fetching credentials, plus the auth service URL when the source is
// remote. Liveness does not imply stored credentials; use Available for
// that.
func (r *Resolver) DetectSource(ctx context.Context) (Source, string) {
	if r.authURL != "" && r.probe(ctx, r.authURL) {
		return SourceRemote, r.authURL
	}
	if r.defaultURL != "" && r.defaultURL != r.authURL && r.probe(ctx, r.defaultURL) {
		return SourceRemote, r.defaultURL
	}
	if r.store != nil && r.store.Exists() {
		return SourceFile, ""
	}
	return SourceNone, ""
}

// tryRemote probes the auth service and, if live, fetches its bundle.
// Returns ok=false on any failure or an empty bundle.
func (r *Resolver) tryRemote(ctx context.Context, baseURL string) (credentials.Bundle, bool) {
	if !r.probe(ctx, baseURL) {
		return credentials.Bundle{}, false
	}
	bundle, err := r.fetch(ctx, baseURL)
	if err != nil {
		r.log.Debugf("fetch from %s failed: %v", baseURL, err)
		return credentials.Bundle{}, false
	}
	if bundle.Empty() {
		return credentials.Bundle{}, false
	}
	r.log.Infof("loaded %d cookies from auth service %s", bundle.Len(), baseURL)
	return bundle, true
}

func (r *Resolver) probe(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *Resolver) fetch(ctx context.Context, baseURL string) (credentials.Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+cookiePath, nil)
	if err != nil {
		return credentials.Bundle{}, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return credentials.Bundle{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return credentials.Bundle{}, nil
	default:
		return credentials.Bundle{}, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var payload struct {
		Cookies []credentials.Cookie `json:"cookies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return credentials.Bundle{}, fmt.Errorf("decode cookie response: %w", err)
	}
	return credentials.Bundle{Cookies: payload.Cookies}, nil
}
