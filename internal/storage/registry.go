package storage

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type RemoteFactory func(dsn string) (Remote, error)
type MirrorFactory func(dsn string) (Mirror, error)

var factoryRegistry = struct {
	mu      sync.RWMutex
	remotes map[string]RemoteFactory
	mirrors map[string]MirrorFactory
}{
	remotes: map[string]RemoteFactory{},
	mirrors: map[string]MirrorFactory{},
}

// RegisterRemote makes a remote backend available under a DSN scheme.
// Backend packages call it from init.
func RegisterRemote(scheme string, factory RemoteFactory) {
	scheme = normalizeScheme(scheme)
	if factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.remotes[scheme] = factory
}

// RegisterMirror makes a mirror backend available under a DSN scheme. The
// empty scheme matches plain file paths.
func RegisterMirror(scheme string, factory MirrorFactory) {
	scheme = normalizeScheme(scheme)
	if factory == nil {
		return
	}
	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()
	factoryRegistry.mirrors[scheme] = factory
}

// OpenRemote builds the remote backend registered for the DSN's scheme.
func OpenRemote(dsn string) (Remote, error) {
	scheme, err := SchemeOf(dsn)
	if err != nil {
		return nil, err
	}
	factoryRegistry.mu.RLock()
	factory, ok := factoryRegistry.remotes[scheme]
	factoryRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported remote scheme %q", ErrInvalidDSN, scheme)
	}
	return factory(dsn)
}

// OpenMirror builds the mirror backend registered for the DSN's scheme.
func OpenMirror(dsn string) (Mirror, error) {
	scheme, err := SchemeOf(dsn)
	if err != nil {
		return nil, err
	}
	factoryRegistry.mu.RLock()
	factory, ok := factoryRegistry.mirrors[scheme]
	factoryRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported mirror scheme %q", ErrInvalidDSN, scheme)
	}
	return factory(dsn)
}

// SchemeOf returns the normalized backend scheme of a DSN. Plain paths have
// the empty scheme and keyword/value DSNs map to postgres.
func SchemeOf(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("%w: empty DSN", ErrInvalidDSN)
	}
	// key=value postgres DSNs have no URL scheme
	if !strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
			return "postgres", nil
		}
		return "", nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	return normalizeScheme(parsed.Scheme), nil
}

func normalizeScheme(scheme string) string {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "postgresql" {
		return "postgres"
	}
	return scheme
}
