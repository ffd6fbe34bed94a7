package mail

import (
	"encoding/base64"
	"strings"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func encodeBody(text string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(text))
}

func TestSenderDomain(t *testing.T) {
	cases := []struct {
		from string
		want string
	}{
		{"UPS Quantum View <pkginfo@ups.com>", "ups.com"},
		{"auto-confirm@amazon.com", "amazon.com"},
		{"\"FedEx\" <TrackingUpdates@fedex.com>", "fedex.com"},
		{"not an address", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := senderDomain(tc.from); got != tc.want {
			t.Fatalf("senderDomain(%q) = %q, want %q", tc.from, got, tc.want)
		}
	}
}

func TestParseMessagePlainTextBody(t *testing.T) {
	msg := &gmail.Message{
		Id:           "msg-42",
		InternalDate: 1767225600000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "UPS <pkginfo@ups.com>"},
				{Name: "Subject", Value: "Your package has shipped"},
			},
			Body: &gmail.MessagePartBody{Data: encodeBody("Tracking: 1Z999AA10123456784")},
		},
	}

	got := parseMessage(msg)
	if got.ID != "msg-42" {
		t.Fatalf("unexpected id %q", got.ID)
	}
	if got.SenderDomain != "ups.com" {
		t.Fatalf("unexpected sender domain %q", got.SenderDomain)
	}
	if got.Subject != "Your package has shipped" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
	if !strings.Contains(got.Body, "1Z999AA10123456784") {
		t.Fatalf("body lost tracking number: %q", got.Body)
	}
	if got.ReceivedAt.IsZero() {
		t.Fatal("expected received timestamp")
	}
}

func TestExtractBodyPrefersPlainOverHTML(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: encodeBody("<p>html copy</p>")},
			},
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: encodeBody("plain copy")},
			},
		},
	}

	if got := extractBody(payload); got != "plain copy" {
		t.Fatalf("expected plain part, got %q", got)
	}
}

func TestExtractBodyFallsBackToStrippedHTML(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/html",
		Body: &gmail.MessagePartBody{
			Data: encodeBody("<html><body><b>Tracking:</b>&nbsp;9400111899223100001234</body></html>"),
		},
	}

	got := extractBody(payload)
	if !strings.Contains(got, "9400111899223100001234") {
		t.Fatalf("stripped html lost tracking number: %q", got)
	}
	if strings.Contains(got, "<") {
		t.Fatalf("expected tags removed, got %q", got)
	}
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: encodeBody("nested body")},
					},
				},
			},
		},
	}

	if got := extractBody(payload); got != "nested body" {
		t.Fatalf("expected nested part found, got %q", got)
	}
}

func TestBuildQueryDefaultsAndWindow(t *testing.T) {
	query := BuildQuery("", 30)
	if !strings.Contains(query, "from:ups.com") {
		t.Fatalf("expected sender heuristics, got %q", query)
	}
	if !strings.Contains(query, "newer_than:30d") {
		t.Fatalf("expected search window, got %q", query)
	}
}

func TestBuildQueryExplicitBaseWins(t *testing.T) {
	query := BuildQuery("label:shipping", 0)
	if query != "label:shipping" {
		t.Fatalf("unexpected query %q", query)
	}
}
