package stagcache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/stagcache/internal/util"
)

// diskMarker routes a key to the disk-resident tier. The marker is
// stripped before the key reaches the disk store.
const diskMarker = '$'

// keyDesc is the structured form of a key string. The "$name@version"
// conventions are parsed exactly once, at the API boundary; internal code
// only ever sees this form.
type keyDesc struct {
	name    string
	version string
	disk    bool
}

// revKey keeps disk- and memory-resident revision counters from
// colliding on the same bare name.
func (k keyDesc) revKey() string {
	if k.disk {
		return string(diskMarker) + k.name
	}
	return k.name
}

func (c *Cache) parseKey(key, version string) keyDesc {
	kd := keyDesc{}
	if len(key) > 0 && key[0] == diskMarker {
		kd.disk = true
		key = key[1:]
	}
	name, embedded := util.SplitKeyVersion(key)
	kd.name = name
	switch {
	case embedded != "":
		kd.version = embedded
	case version != "":
		kd.version = version
	default:
		kd.version = c.version
	}
	return kd
}

// Session identifier. Established once per process run and used as the
// default minor version component, so entries written in one run are
// invalidated in the next unless a stable minor version is supplied.
var (
	sessionMu sync.Mutex
	sessionID = time.Now().UnixNano()
)

// SessionID returns the process-wide session identifier.
func SessionID() int64 {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionID
}

// OverrideSessionID replaces the session identifier. Intended for tests
// that need deterministic version defaults.
func OverrideSessionID(id int64) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	sessionID = id
}

// ComposeVersion combines a major and minor version component into a
// single version string. A minor of "" or "0" substitutes the session
// identifier. A minor with a leading '-' is custom and used verbatim as
// the whole version, bypassing the session substitution.
func ComposeVersion(major, minor string) string {
	if strings.HasPrefix(minor, "-") {
		return minor
	}
	if minor == "" || minor == "0" {
		minor = strconv.FormatInt(SessionID(), 10)
	}
	return major + "." + minor
}

// ResolveKey splits the "name@version" convention and resolves the
// effective version: an embedded "@version" wins over the composed
// (major, minor) pair.
func ResolveKey(key, major, minor string) (name, version string) {
	name, embedded := util.SplitKeyVersion(key)
	if embedded != "" {
		return name, embedded
	}
	return name, ComposeVersion(major, minor)
}
