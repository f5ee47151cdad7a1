// Package stagcache implements a versioned hybrid cache: an in-process
// keyed store spanning memory and disk, with per-entry version tagging
// for automatic invalidation, per-key revision counters for change
// detection, list-valued entries with push/pop semantics, and a deferred
// write path drained on explicit demand.
//
// Components:
//   - value: the closed union of shapes an entry can hold.
//   - bundle: the versioned envelope codec (JSON, CBOR or msgpack payloads).
//   - diskstore: one-file-per-key persistence with atomic replace.
//   - webcache: a size- and age-bounded blob cache for fetched content.
//   - provider: byte stores (BigCache, Ristretto) for webcache's memory layer.
//
// Keys:
//
//	name        - memory-resident entry
//	$name       - disk-resident entry (marker stripped before the store)
//	name@3      - entry version 3; equivalent to WithVersion("3")
//
// Version defaults:
//
//	ComposeVersion("2", "0") - minor 0 substitutes the per-run session
//	identifier, so entries from one process run are invalidated in the
//	next; supply a stable minor (or a "-custom" one) to persist across runs.
//
// Reads surface absence as a miss, never an error; an envelope whose
// format version is unknown is a hard *bundle.FormatError; lifecycle
// misuse (Load twice, Unload unloaded) fails fast.
package stagcache
