// Package coretest provides in-memory doubles of the engine's provider ports.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/mikey/sift-mail/internal/core"
)

// Mailbox is a stateful in-memory MailboxProvider
type Mailbox struct {
	mu       sync.Mutex
	Address  string
	messages map[string]*core.Message
	order    []string
	labels   []core.Label
	nextID   int

	// Failure injection, keyed by operation name
	Fail map[string]error

	Calls map[string]int
}

// NewMailbox creates a mailbox holding only the system labels
func NewMailbox(address string) *Mailbox {
	return &Mailbox{
		Address:  address,
		messages: make(map[string]*core.Message),
		labels: []core.Label{
			{ID: core.InboxLabel, Name: core.InboxLabel, Type: "system"},
			{ID: "SPAM", Name: "SPAM", Type: "system"},
		},
		Fail:  make(map[string]error),
		Calls: make(map[string]int),
	}
}

// AddMessage stores a message in the inbox
func (m *Mailbox) AddMessage(id string, headers map[string]string, snippet string) *Mailbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[id] = &core.Message{
		ID:       id,
		ThreadID: "t-" + id,
		Headers:  headers,
		Snippet:  snippet,
		LabelIDs: []string{core.InboxLabel},
	}
	m.order = append(m.order, id)
	return m
}

// AddLabel registers a user label and returns its ID
func (m *Mailbox) AddLabel(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLabelLocked(name)
}

func (m *Mailbox) addLabelLocked(name string) string {
	m.nextID++
	id := fmt.Sprintf("Label_%d", m.nextID)
	m.labels = append(m.labels, core.Label{ID: id, Name: name, Type: "user"})
	return id
}

// DeleteLabel removes a user label and strips it from every message
func (m *Mailbox) DeleteLabel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.labels {
		if l.Name != name {
			continue
		}
		m.labels = append(m.labels[:i], m.labels[i+1:]...)
		for _, msg := range m.messages {
			msg.LabelIDs = slices.DeleteFunc(msg.LabelIDs, func(id string) bool { return id == l.ID })
		}
		return
	}
}

func (m *Mailbox) hasLabelIDLocked(id string) bool {
	for _, l := range m.labels {
		if l.ID == id {
			return true
		}
	}
	return false
}

// LabelsOf returns the current labels of a message
func (m *Mailbox) LabelsOf(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil
	}
	return slices.Clone(msg.LabelIDs)
}

// LabelID returns the ID of a label by name
func (m *Mailbox) LabelID(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.labels {
		if l.Name == name {
			return l.ID, true
		}
	}
	return "", false
}

func (m *Mailbox) enter(op string) error {
	m.Calls[op]++
	return m.Fail[op]
}

// ListMessages implements core.MailboxProvider
func (m *Mailbox) ListMessages(ctx context.Context, label, query string, max int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list"); err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for _, id := range m.order {
		msg := m.messages[id]
		if label != "" && !msg.HasLabel(label) {
			continue
		}
		ids = append(ids, id)
		if max > 0 && len(ids) == max {
			break
		}
	}
	return ids, nil
}

// GetMessage implements core.MailboxProvider
func (m *Mailbox) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get"); err != nil {
		return nil, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	cp := *msg
	cp.LabelIDs = slices.Clone(msg.LabelIDs)
	return &cp, nil
}

// ListLabels implements core.MailboxProvider
func (m *Mailbox) ListLabels(ctx context.Context) ([]core.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("labels"); err != nil {
		return nil, err
	}
	return slices.Clone(m.labels), nil
}

// CreateLabel implements core.MailboxProvider
func (m *Mailbox) CreateLabel(ctx context.Context, name string) (*core.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create"); err != nil {
		return nil, err
	}
	for _, l := range m.labels {
		if l.Name == name {
			return nil, errors.New("label name exists or conflicts")
		}
	}
	id := m.addLabelLocked(name)
	return &core.Label{ID: id, Name: name, Type: "user"}, nil
}

// ModifyLabels implements core.MailboxProvider
func (m *Mailbox) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("modify"); err != nil {
		return err
	}
	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, core.ErrNotFound)
	}
	for _, l := range add {
		if !m.hasLabelIDLocked(l) {
			return fmt.Errorf("invalid label: %s", l)
		}
	}
	set := make(map[string]bool)
	for _, l := range msg.LabelIDs {
		set[l] = true
	}
	for _, l := range add {
		set[l] = true
	}
	for _, l := range remove {
		delete(set, l)
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	msg.LabelIDs = labels
	return nil
}

// Profile implements core.MailboxProvider
func (m *Mailbox) Profile(ctx context.Context) (*core.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("profile"); err != nil {
		return nil, err
	}
	return &core.Profile{
		EmailAddress:  m.Address,
		MessagesTotal: int64(len(m.messages)),
		ThreadsTotal:  int64(len(m.messages)),
		HistoryID:     1,
	}, nil
}

// Connector hands out registered mailboxes
type Connector struct {
	mu        sync.Mutex
	mailboxes map[string]*Mailbox
}

// NewConnector creates a connector with the given mailboxes registered under their address
func NewConnector(mailboxes ...*Mailbox) *Connector {
	c := &Connector{mailboxes: make(map[string]*Mailbox)}
	for _, m := range mailboxes {
		c.mailboxes[m.Address] = m
	}
	return c
}

// Connect implements core.MailboxConnector
func (c *Connector) Connect(ctx context.Context, account string) (core.MailboxProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.mailboxes[account]
	if !ok {
		return nil, core.ErrNotConnected
	}
	return m, nil
}

// Identity is a scripted IdentityProvider
type Identity struct {
	mu sync.Mutex

	// Codes maps an authorization code to the account it authorizes
	Codes       map[string]string
	RevokeErr   error
	Revoked     []string
	AuthBaseURL string
}

// NewIdentity creates an identity provider with no known codes
func NewIdentity() *Identity {
	return &Identity{Codes: make(map[string]string), AuthBaseURL: "https://accounts.example.test/auth"}
}

// AuthCodeURL implements core.IdentityProvider
func (i *Identity) AuthCodeURL(state string) string {
	return i.AuthBaseURL + "?state=" + state
}

// Exchange implements core.IdentityProvider
func (i *Identity) Exchange(ctx context.Context, code string) (*core.TokenRecord, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	account, ok := i.Codes[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return &core.TokenRecord{
		AccessToken:  "access-" + account,
		RefreshToken: "refresh-" + account,
		TokenType:    "Bearer",
	}, nil
}

// LookupEmail implements core.IdentityProvider
func (i *Identity) LookupEmail(ctx context.Context, token *core.TokenRecord) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, account := range i.Codes {
		if token.AccessToken == "access-"+account {
			return account, nil
		}
	}
	return "", errors.New("unknown token")
}

// Revoke implements core.IdentityProvider
func (i *Identity) Revoke(ctx context.Context, token *core.TokenRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.RevokeErr != nil {
		return i.RevokeErr
	}
	i.Revoked = append(i.Revoked, token.RefreshToken)
	return nil
}
