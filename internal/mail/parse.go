package mail

import (
	"encoding/base64"
	netmail "net/mail"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

func headerValue(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, header := range payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// senderDomain pulls the domain from a From header. Display names and
// angle brackets are handled by the address parser; a malformed header
// yields an empty domain.
func senderDomain(from string) string {
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return ""
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// extractBody collects the decoded text of a message, preferring
// text/plain parts and falling back to tag-stripped text/html.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	var plain, html []string
	collectParts(payload, &plain, &html)
	if len(plain) > 0 {
		return strings.Join(plain, "\n")
	}
	if len(html) > 0 {
		return stripTags(strings.Join(html, "\n"))
	}
	return ""
}

func collectParts(part *gmail.MessagePart, plain, html *[]string) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" {
		if text, err := decodeBody(part.Body.Data); err == nil && text != "" {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain"):
				*plain = append(*plain, text)
			case strings.HasPrefix(part.MimeType, "text/html"):
				*html = append(*html, text)
			}
		}
	}
	for _, child := range part.Parts {
		collectParts(child, plain, html)
	}
}

// Gmail body data is base64url, usually unpadded.
func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// stripTags is a crude HTML-to-text pass. Tracking numbers survive it; the
// layout does not need to.
func stripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
