package client

import "fmt"

// Mode overrides how strictly the transport follows the standard
// caching rules, mirroring the browser fetch cache modes.
type Mode string

const (
	// ModeDefault follows the full caching rules: fresh entries are
	// served locally, stale ones are revalidated, misses are fetched and
	// stored when cacheable.
	ModeDefault Mode = "default"

	// ModeNoStore never reads from or writes to the cache.
	ModeNoStore Mode = "no-store"

	// ModeReload always fetches from the network and updates the cache
	// with the result, ignoring any stored entry.
	ModeReload Mode = "reload"

	// ModeNoCache revalidates with the origin before serving a stored
	// entry, regardless of freshness.
	ModeNoCache Mode = "no-cache"

	// ModeForceCache serves any stored entry regardless of staleness and
	// only goes to the network on a true miss.
	ModeForceCache Mode = "force-cache"

	// ModeOnlyIfCached serves only from the cache and never touches the
	// network; a miss synthesizes a 504 Gateway Timeout.
	ModeOnlyIfCached Mode = "only-if-cached"
)

// ParseMode validates a mode string from configuration. The empty
// string means ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDefault:
		return ModeDefault, nil
	case ModeNoStore, ModeReload, ModeNoCache, ModeForceCache, ModeOnlyIfCached:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown cache mode %q", s)
}
