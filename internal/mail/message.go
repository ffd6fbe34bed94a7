package mail

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one fetched email reduced to the fields the extraction
// pipeline needs.
type Message struct {
	ID           string
	SenderDomain string
	Subject      string
	Body         string
	ReceivedAt   time.Time
}

// Source searches a mailbox for candidate shipping messages.
type Source interface {
	Search(ctx context.Context, query string, maxResults int64) ([]Message, error)
}

// Shipping-notification senders and subject phrases worth scanning. The
// list errs toward recall; the extractor discards messages without a
// plausible tracking number.
var (
	defaultSenders = []string{
		"ups.com",
		"fedex.com",
		"usps.com",
		"dhl.com",
		"amazon.com",
		"shopify.com",
	}
	defaultSubjects = []string{
		"shipped",
		"tracking",
		"delivery",
		"on its way",
		"out for delivery",
	}
)

// BuildQuery assembles the Gmail search expression. An explicit base query
// from configuration wins; otherwise the built-in sender and subject
// heuristics apply. sinceDays bounds the search window when positive.
func BuildQuery(base string, sinceDays int) string {
	query := strings.TrimSpace(base)
	if query == "" {
		var senders []string
		for _, s := range defaultSenders {
			senders = append(senders, "from:"+s)
		}
		var subjects []string
		for _, s := range defaultSubjects {
			if strings.Contains(s, " ") {
				s = `"` + s + `"`
			}
			subjects = append(subjects, "subject:"+s)
		}
		query = fmt.Sprintf("{%s} OR {%s}",
			strings.Join(senders, " "), strings.Join(subjects, " "))
	}
	if sinceDays > 0 {
		query = fmt.Sprintf("%s newer_than:%dd", query, sinceDays)
	}
	return query
}
