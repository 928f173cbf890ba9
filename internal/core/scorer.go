package core

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mikey/sift-mail/internal/senderlist"
)

// Signal weights
const (
	weightBlocklist     = 0.60
	weightSubject       = 0.30
	weightSender        = 0.25
	weightNoUnsubscribe = 0.10
	weightShortener     = 0.15
	weightShortSnippet  = 0.05

	shortSnippetChars = 20
)

// Reason codes
const (
	ReasonAllowlist     = "allowlist"
	ReasonBlocklist     = "blocklist"
	ReasonSubject       = "subject_pattern"
	ReasonSender        = "sender_pattern"
	ReasonNoUnsubscribe = "no_unsubscribe"
	ReasonShortener     = "link_shortener"
	ReasonShortSnippet  = "short_snippet"
)

var (
	suspiciousSubject = regexp.MustCompile(`(?i)(free|winner|congratulations|urgent|verify|invoice|payment|limited|act now|gift|deal|promo|offer)`)
	suspiciousSender  = regexp.MustCompile(`(?i)(noreply@|no-reply@|mailer-daemon|.*\.(ru|cn|tk|xyz|top|icu)>?$)`)
	linkShortener     = regexp.MustCompile(`(?i)\b(bit\.ly|linktr\.ee|tinyurl\.com|t\.co|kutt\.it)\b`)
)

// ScoreMessage computes the risk score of a message against an account's rules.
// It is a pure function of its inputs.
func ScoreMessage(headers map[string]string, snippet string, rules RuleSet) ScoreResult {
	addr, domain := senderlist.ParseSender(headerValue(headers, "From"))

	if senderlist.New(rules.Allow).MatchesSender(addr, domain) {
		return ScoreResult{Score: 0.0, Reasons: []string{ReasonAllowlist}}
	}

	score := 0.0
	reasons := make([]string, 0, 6)
	add := func(weight float64, reason string) {
		score += weight
		reasons = append(reasons, reason)
	}

	if senderlist.New(rules.Block).MatchesSenderOrDomain(addr, domain) {
		add(weightBlocklist, ReasonBlocklist)
	}
	if suspiciousSubject.MatchString(headerValue(headers, "Subject")) {
		add(weightSubject, ReasonSubject)
	}
	returnPath := strings.TrimSpace(headerValue(headers, "Return-Path"))
	if (addr != "" && suspiciousSender.MatchString(addr)) || (returnPath != "" && suspiciousSender.MatchString(returnPath)) {
		add(weightSender, ReasonSender)
	}
	if _, ok := lookupHeader(headers, "List-Unsubscribe"); !ok {
		add(weightNoUnsubscribe, ReasonNoUnsubscribe)
	}
	if linkShortener.MatchString(snippet) {
		add(weightShortener, ReasonShortener)
	}
	if snippet != "" && utf8.RuneCountInString(snippet) < shortSnippetChars {
		add(weightShortSnippet, ReasonShortSnippet)
	}

	return ScoreResult{Score: clampScore(score), Reasons: reasons}
}

// MeetsThreshold reports whether a score is actionable; the comparison is inclusive
func MeetsThreshold(score, threshold float64) bool {
	return score >= threshold
}

func clampScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*100) / 100
}

func headerValue(headers map[string]string, name string) string {
	v, _ := lookupHeader(headers, name)
	return v
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
