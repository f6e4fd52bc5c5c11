// Moderation component for caching small JSON values with a fixed TTL and explicit purging.
//
// Used by the cached suspension store and user directory, so that hot-path checks (eg, "may this user post?") avoid a storage round-trip. Writers purge the affected entry.
package cachestore
