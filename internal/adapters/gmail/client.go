package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/utils"
	"go.uber.org/zap"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const (
	// Gmail's special user ID for the authenticated mailbox
	me = "me"

	maxListPage = 500
)

// MetadataHeaders are requested with every message fetch
var MetadataHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
	"Return-Path",
	"Reply-To",
	"List-Unsubscribe",
	"Message-ID",
	"Delivered-To",
}

// Client implements core.MailboxProvider on the Gmail REST API
type Client struct {
	svc    *gmailv1.Service
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewClient wraps an authenticated Gmail service
func NewClient(svc *gmailv1.Service, text *utils.TextProcessor, logger *zap.Logger) *Client {
	return &Client{
		svc:    svc,
		text:   text,
		logger: logger,
	}
}

// ListMessages pages through the mailbox until max IDs are collected
func (c *Client) ListMessages(ctx context.Context, label, query string, max int) ([]string, error) {
	ids := make([]string, 0)
	if max <= 0 {
		return ids, nil
	}

	pageToken := ""
	for len(ids) < max {
		call := c.svc.Users.Messages.List(me).
			MaxResults(int64(min(max-len(ids), maxListPage))).
			Context(ctx)
		if label != "" {
			call = call.LabelIds(label)
		}
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, wrapAPIError("list messages", err)
		}
		for _, m := range resp.Messages {
			if len(ids) >= max {
				break
			}
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.logger.Debug("Listed messages",
		zap.String("label", label),
		zap.String("query", query),
		zap.Int("count", len(ids)))
	return ids, nil
}

// GetMessage fetches message metadata without the body
func (c *Client) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	m, err := c.svc.Users.Messages.Get(me, id).
		Format("metadata").
		MetadataHeaders(MetadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("get message", err)
	}

	headers := make(map[string]string)
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			// First occurrence wins, as with Return-Path prepended by the final MTA.
			if _, seen := headers[h.Name]; seen {
				continue
			}
			headers[h.Name] = c.text.ProcessHeader(h.Value)
		}
	}

	return &core.Message{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		Headers:      headers,
		Snippet:      c.text.ProcessSnippet(m.Snippet, utils.DefaultSnippetSize),
		InternalDate: time.UnixMilli(m.InternalDate).UTC(),
		LabelIDs:     m.LabelIds,
	}, nil
}

// ListLabels returns every label of the mailbox
func (c *Client) ListLabels(ctx context.Context) ([]core.Label, error) {
	resp, err := c.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("list labels", err)
	}
	labels := make([]core.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, core.Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

// CreateLabel creates a visible user label
func (c *Client) CreateLabel(ctx context.Context, name string) (*core.Label, error) {
	l, err := c.svc.Users.Labels.Create(me, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("create label", err)
	}
	c.logger.Info("Created label", zap.String("name", name), zap.String("id", l.Id))
	return &core.Label{ID: l.Id, Name: l.Name, Type: l.Type}, nil
}

// ModifyLabels adds and removes labels on a message
func (c *Client) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	_, err := c.svc.Users.Messages.Modify(me, id, &gmailv1.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("modify message", err)
	}
	return nil
}

// Profile returns the mailbox profile
func (c *Client) Profile(ctx context.Context) (*core.Profile, error) {
	p, err := c.svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get profile", err)
	}
	return &core.Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
