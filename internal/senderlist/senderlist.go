package senderlist

import (
	"net/mail"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Fold returns the case-folded, trimmed form of an entry
func Fold(entry string) string {
	return folder.String(strings.TrimSpace(entry))
}

// Normalize folds every entry, drops empty and duplicate entries and sorts the result
func Normalize(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		f := Fold(e)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Merge returns the normalized union of two entry lists
func Merge(existing, added []string) []string {
	all := make([]string, 0, len(existing)+len(added))
	all = append(all, existing...)
	all = append(all, added...)
	return Normalize(all)
}

// ParseSender extracts the lower-cased address and domain from a From header value.
// Values that do not parse as an address fall back to the text inside angle brackets
// or the raw value.
func ParseSender(from string) (addr, domain string) {
	from = strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = parsed.Address
	} else if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			addr = from[start+1 : start+end]
		} else {
			addr = from
		}
	} else {
		addr = from
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		domain = addr[at+1:]
	}
	return addr, domain
}

// List is a set of folded sender entries: full addresses, "@domain" or bare domains
type List struct {
	entries map[string]struct{}
}

// New creates a list from raw entries
func New(entries []string) *List {
	l := &List{entries: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		if f := Fold(e); f != "" {
			l.entries[f] = struct{}{}
		}
	}
	return l
}

// Len returns the number of distinct entries
func (l *List) Len() int {
	return len(l.entries)
}

// MatchesSender reports whether the address or "@"+domain is listed
func (l *List) MatchesSender(addr, domain string) bool {
	if len(l.entries) == 0 || addr == "" {
		return false
	}
	if l.has(addr) {
		return true
	}
	return domain != "" && l.has("@"+domain)
}

// MatchesSenderOrDomain also accepts a bare domain entry
func (l *List) MatchesSenderOrDomain(addr, domain string) bool {
	if l.MatchesSender(addr, domain) {
		return true
	}
	return domain != "" && l.has(domain)
}

func (l *List) has(v string) bool {
	_, ok := l.entries[Fold(v)]
	return ok
}
