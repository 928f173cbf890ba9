package core

import (
	"net/url"
	"strings"
)

// Key namespaces of the per-account records
const (
	NamespaceTokens   = "tokens"
	NamespaceSettings = "settings"
	NamespaceRules    = "rules"
	NamespaceLogs     = "logs"
)

// AccountKey builds the store key of an account record. The account part is
// escaped so it is safe to use as a file name.
func AccountKey(namespace, account string) string {
	return namespace + "/" + EscapeAccount(account)
}

// EscapeAccount returns a filesystem-safe encoding of an account identifier
func EscapeAccount(account string) string {
	escaped := url.PathEscape(strings.TrimSpace(account))
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped
}
