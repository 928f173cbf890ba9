package rfc822

import (
	"strings"
	"testing"
	"time"

	"github.com/mikey/sift-mail/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestParser() *Parser {
	logger := zap.NewNop()
	return NewParser(utils.NewTextProcessor(logger), logger)
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParsePlainMessage(t *testing.T) {
	raw := crlf(`From: Promo <promo@deals.xyz>
To: user@example.com
Subject: =?UTF-8?B?WW91IGFyZSBhIFdJTk5FUg==?=
Date: Mon, 01 Jan 2024 10:00:00 +0100
Message-ID: <abc123@deals.xyz>
X-Ignored: yes
Content-Type: text/plain; charset=utf-8

Claim   your &amp; prize
at bit.ly/x
`)
	msg, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "abc123@deals.xyz", msg.ID)
	assert.Equal(t, "You are a WINNER", msg.Headers["Subject"])
	assert.Equal(t, "Promo <promo@deals.xyz>", msg.Headers["From"])
	assert.NotContains(t, msg.Headers, "X-Ignored")
	assert.NotContains(t, msg.Headers, "List-Unsubscribe")
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), msg.InternalDate)
	assert.Equal(t, "Claim your & prize at bit.ly/x", msg.Snippet)
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: news@example.com
Subject: Weekly news
List-Unsubscribe: <mailto:unsub@example.com>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>HTML <b>version</b></p>
--b1
Content-Type: text/plain; charset=utf-8

Plain version of the weekly news
--b1--
`)
	msg, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Plain version of the weekly news", msg.Snippet)
	assert.Equal(t, "<mailto:unsub@example.com>", msg.Headers["List-Unsubscribe"])
}

func TestParseHTMLOnly(t *testing.T) {
	raw := crlf(`From: news@example.com
Content-Type: text/html; charset=utf-8

<html><body><h1>Hello</h1><p>there</p></body></html>
`)
	msg, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", msg.Snippet)
}

func TestParseTruncatesSnippet(t *testing.T) {
	raw := crlf("From: a@b.c\nContent-Type: text/plain\n\n" + strings.Repeat("word ", 100) + "\n")
	msg, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultSnippetSize, len([]rune(msg.Snippet)))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := newTestParser().Parse(strings.NewReader("this is not a header\r\n"))
	assert.Error(t, err)
}
