package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"parcelwatch/internal/config"
	"parcelwatch/internal/logging"
)

// Gmail bills messages.list and messages.get at five quota units each
// against a 250 unit/sec/user budget. Twenty requests a second keeps a
// comfortable margin for other clients on the same account.
const (
	gmailRequestsPerSecond = 20
	gmailBurst             = 20
)

// GmailSource implements Source against the live Gmail API.
type GmailSource struct {
	service *gmail.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGmailSource builds an authenticated read-only client from the stored
// credentials and token. A missing token is an error; the auth command
// creates one.
func NewGmailSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*GmailSource, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	oauthCfg, err := LoadOAuthConfig(cfg.Gmail.CredentialsPath)
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.Gmail.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("no stored token (run the auth command first): %w", err)
	}

	client := oauthCfg.Client(ctx, token)
	// Every Gmail request gets the same per-call cap as the courier APIs
	// so a stalled connection cannot hang a cycle.
	client.Timeout = time.Duration(cfg.Tracking.RequestTimeoutSeconds) * time.Second
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &GmailSource{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(gmailRequestsPerSecond), gmailBurst),
		logger:  logging.WithComponent(logger, "gmail"),
	}, nil
}

// Search lists message IDs matching query and fetches each full message.
// Individual fetch failures skip the message rather than aborting the
// whole search.
func (s *GmailSource) Search(ctx context.Context, query string, maxResults int64) ([]Message, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	list, err := s.service.Users.Messages.List("me").
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		full, err := s.service.Users.Messages.Get("me", ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping unfetchable message",
				logging.String("message_id", ref.Id),
				logging.Error(err))
			continue
		}
		messages = append(messages, parseMessage(full))
	}
	s.logger.Debug("gmail search complete",
		logging.String("query", query),
		logging.Int("messages", len(messages)))
	return messages, nil
}

// parseMessage reduces a full Gmail payload to the Message fields.
func parseMessage(msg *gmail.Message) Message {
	received := time.Time{}
	if msg.InternalDate > 0 {
		received = time.UnixMilli(msg.InternalDate).UTC()
	}
	return Message{
		ID:           msg.Id,
		SenderDomain: senderDomain(headerValue(msg.Payload, "From")),
		Subject:      headerValue(msg.Payload, "Subject"),
		Body:         extractBody(msg.Payload),
		ReceivedAt:   received,
	}
}
