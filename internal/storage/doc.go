// Package storage holds MioEngine's persistent key/value data.
//
// # Layout
//
// Values are grouped in named sections and addressed by (section, key):
//
//	archive.Put("guilds", "123456", []byte(`{"locale":"en"}`))
//	raw, err := archive.Get("guilds", "123456")
//
// MemoryStore keeps everything in nested maps behind a sync.RWMutex. Reads
// and writes copy byte slices so callers never share memory with the store.
// A section disappears once its last key is deleted.
//
// # Archive
//
// Archive embeds a MemoryStore and persists it as one fernet token. The
// decrypted document is JSON:
//
//	{
//	  "version": 1,
//	  "instance_id": "<uuid>",
//	  "created_at": "...",
//	  "saved_at": "...",
//	  "sections": {"<section>": {"<key>": "<base64>"}}
//	}
//
// Save writes to a temporary file in the same directory and renames it over
// the archive, so a crash never leaves a truncated file behind.
//
// OpenArchive behaves as follows:
//
//   - missing file: a new empty archive with a fresh instance id
//   - undecryptable or malformed file: an error wrapping ErrArchiveInvalid,
//     or a new empty archive when ArchiveOptions.Rewrite is set
//
// # Keys
//
// LoadKey prefers the MIO_ARCHIVE_KEY value handed to it. Without one, the
// key lives in "<archive>.key" and is generated with mode 0600 on first use.
//
// # Autosave
//
// Autosaver runs Save on a robfig/cron schedule ("@every 5m" by default)
// and records every outcome in the mio_archive_saves_total counter.
// Overlapping runs are skipped.
package storage
