package core

import (
	"context"
	"sync"
)

type labelKey struct {
	account string
	name    string
}

// LabelResolver maps (account, label name) to a provider label ID.
// Lookups are cached; creation happens at most once per pair. Provider
// calls only serialize on their own pair, never across accounts.
type LabelResolver struct {
	mu    sync.Mutex
	cache map[labelKey]string
	keys  map[labelKey]*sync.Mutex
}

// NewLabelResolver creates an empty resolver
func NewLabelResolver() *LabelResolver {
	return &LabelResolver{
		cache: make(map[labelKey]string),
		keys:  make(map[labelKey]*sync.Mutex),
	}
}

// Ensure returns the ID of the named label, creating it when the mailbox has none
func (r *LabelResolver) Ensure(ctx context.Context, provider MailboxProvider, account, name string) (string, error) {
	key := labelKey{account: account, name: name}
	unlock := r.lockKey(key)
	defer unlock()

	if id, ok := r.cached(key); ok {
		return id, nil
	}

	id, found, err := findLabel(ctx, provider, name)
	if err != nil {
		return "", err
	}
	if !found {
		created, err := provider.CreateLabel(ctx, name)
		if err != nil {
			return "", ProviderError("create label", err)
		}
		id = created.ID
	}
	r.store(key, id)
	return id, nil
}

// Find returns the ID of the named label without creating it
func (r *LabelResolver) Find(ctx context.Context, provider MailboxProvider, account, name string) (string, bool, error) {
	key := labelKey{account: account, name: name}
	unlock := r.lockKey(key)
	defer unlock()

	id, found, err := findLabel(ctx, provider, name)
	if err != nil {
		return "", false, err
	}
	if found {
		r.store(key, id)
	} else {
		r.Forget(account, name)
	}
	return id, found, nil
}

func (r *LabelResolver) lockKey(key labelKey) func() {
	r.mu.Lock()
	l, ok := r.keys[key]
	if !ok {
		l = &sync.Mutex{}
		r.keys[key] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (r *LabelResolver) cached(key labelKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[key]
	return id, ok
}

func (r *LabelResolver) store(key labelKey, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = id
}

// Forget drops the cached binding, e.g. after the label was rejected by the provider
func (r *LabelResolver) Forget(account, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, labelKey{account: account, name: name})
}

// ForgetAccount drops every cached binding of an account
func (r *LabelResolver) ForgetAccount(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key.account == account {
			delete(r.cache, key)
		}
	}
}

func findLabel(ctx context.Context, provider MailboxProvider, name string) (string, bool, error) {
	labels, err := provider.ListLabels(ctx)
	if err != nil {
		return "", false, ProviderError("list labels", err)
	}
	for _, l := range labels {
		if l.Name == name {
			return l.ID, true, nil
		}
	}
	return "", false, nil
}
