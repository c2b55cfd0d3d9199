package transfer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ManifestEntry is one line of a bulk-send manifest.
type ManifestEntry struct {
	Recipient string
	Count     int
}

// ReadManifest parses (recipient, count) records. The manifest is read in
// full before anything is returned, so a bad line is reported before any
// token is sent.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	cr := newReader(r)

	var entries []ManifestEntry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) < 2 {
			return nil, invalidRecord(line, "want recipient and count, got %d field(s)", len(rec))
		}
		recipient := strings.TrimSpace(rec[0])
		if recipient == "" {
			return nil, invalidRecord(line, "empty recipient")
		}
		count, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || count <= 0 {
			return nil, invalidRecord(line, "count %q is not a positive integer", rec[1])
		}
		entries = append(entries, ManifestEntry{Recipient: recipient, Count: count})
	}
}
