package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
)

// record is the JSON-lines wire shape: a motion.Sample with an optional
// location alongside it.
type record struct {
	motion.Sample
	Location *motion.Location `json:"location,omitempty"`
}

// #region read-jsonl
// ReadJSONLines decodes one sample per line from r and sends it on out until
// r is exhausted or ctx is done. Blank and malformed lines are skipped.
// The caller owns out and closes it.
func ReadJSONLines(ctx context.Context, r io.Reader, out chan<- Reading) (Stats, error) {
	var stats Stats
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scan.Scan() {
		line := scan.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		stats.Lines++

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Timestamp.IsZero() {
			stats.Skipped++
			continue
		}

		select {
		case out <- Reading{Sample: rec.Sample, Location: rec.Location}:
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
	if err := scan.Err(); err != nil {
		return stats, fmt.Errorf("read samples: %w", err)
	}
	return stats, nil
}

// WriteJSONLine encodes one reading in the format ReadJSONLines accepts.
func WriteJSONLine(w io.Writer, r Reading) error {
	b, err := json.Marshal(record{Sample: r.Sample, Location: r.Location})
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// #endregion read-jsonl
