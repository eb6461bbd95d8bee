// Package inbox abstracts the mailbox a scan run reads from. The only
// shipped implementation reads a local directory of message files;
// hosted mail providers plug in behind the same Client interface.
package inbox

import (
	"context"
	"strings"
	"time"
)

// Message is one inbox message header. ProviderID is the provider's
// stable message id and doubles as the scan idempotency key.
type Message struct {
	ProviderID string    `json:"provider_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Preview    string    `json:"preview,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Client lists messages and fetches bodies.
type Client interface {
	// ListMessages returns up to limit message headers, oldest first.
	// A nil since returns everything.
	ListMessages(ctx context.Context, limit int, since *time.Time) ([]Message, error)

	// GetBody returns the full text body for a message id.
	GetBody(ctx context.Context, id string) (string, error)
}

// Filter selects messages worth scanning. A message passes when its
// sender domain matches OR its subject/preview contains a keyword; an
// empty filter passes everything.
type Filter struct {
	SenderDomains []string
	Keywords      []string
}

// Matches reports whether the message passes the filter.
func (f Filter) Matches(m Message) bool {
	if len(f.SenderDomains) == 0 && len(f.Keywords) == 0 {
		return true
	}

	sender := strings.ToLower(m.Sender)
	for _, d := range f.SenderDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" && strings.HasSuffix(sender, "@"+d) {
			return true
		}
	}

	haystack := strings.ToLower(m.Subject + " " + m.Preview)
	for _, k := range f.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

// networkSignals pairs canonical network names with the substrings that
// identify them in sender addresses, subjects, and previews. Checked in
// order; first match wins.
var networkSignals = []struct {
	network string
	signals []string
}{
	{"AlphaSights", []string{"alphasights"}},
	{"Guidepoint", []string{"guidepoint"}},
	{"GLG", []string{"glg.it", "glgroup", "gerson lehrman"}},
	{"Tegus", []string{"tegus"}},
	{"Third Bridge", []string{"third bridge", "thirdbridge"}},
}

// DetectNetwork infers the expert network from message headers. Returns
// "" when no signal matches.
func DetectNetwork(m Message) string {
	haystack := strings.ToLower(m.Sender + " " + m.Subject + " " + m.Preview)
	for _, entry := range networkSignals {
		for _, s := range entry.signals {
			if strings.Contains(haystack, s) {
				return entry.network
			}
		}
	}
	return ""
}
