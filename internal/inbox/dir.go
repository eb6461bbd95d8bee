package inbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Dir reads messages from a local directory. Each message is a pair of
// files sharing a base name: <id>.json holds the Message header and
// <id>.txt holds the body. Useful for CLI runs against exported mail
// and for tests.
type Dir struct {
	path string
}

// NewDir opens a directory-backed inbox.
func NewDir(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inbox: open dir %s", path)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("inbox: %s is not a directory", path)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) ListMessages(ctx context.Context, limit int, since *time.Time) ([]Message, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, eris.Wrap(err, "inbox: read dir")
	}

	var msgs []Message
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(d.path, entry.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "inbox: read header %s", entry.Name())
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, eris.Wrapf(err, "inbox: parse header %s", entry.Name())
		}
		if msg.ProviderID == "" {
			msg.ProviderID = strings.TrimSuffix(entry.Name(), ".json")
		}
		if since != nil && msg.ReceivedAt.Before(*since) {
			continue
		}
		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ProviderID < msgs[j].ProviderID
		}
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (d *Dir) GetBody(ctx context.Context, id string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	data, err := os.ReadFile(filepath.Join(d.path, id+".txt"))
	if err != nil {
		return "", eris.Wrapf(err, "inbox: read body %s", id)
	}
	return string(data), nil
}
