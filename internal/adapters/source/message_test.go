package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/utils"
)

func newTestParser() *MessageParser {
	return NewMessageParser(utils.NewTextProcessor(zap.NewNop()))
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParsePlainMessage(t *testing.T) {
	raw := crlf(`From: Netflix <info@mailer.netflix.com>
To: me@example.com
Subject: Your Netflix membership receipt
Date: Fri, 01 Nov 2024 09:30:00 +0000

Thanks!   You were charged $15.49.
`)
	email, err := newTestParser().ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Netflix <info@mailer.netflix.com>", email.From)
	assert.Equal(t, "Your Netflix membership receipt", email.Subject)
	assert.Equal(t, "Thanks! You were charged $15.49.", email.Body)
	assert.True(t, time.Date(2024, 11, 1, 9, 30, 0, 0, time.UTC).Equal(email.ReceivedAt))
	assert.Equal(t, []string{"me@example.com"}, email.Headers["To"])
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: =?UTF-8?Q?Spotify_AB?= <no-reply@spotify.com>
Subject: =?UTF-8?B?RGVpbmUgUXVpdHR1bmcg4oCTIFNwb3RpZnk=?=
Date: Sat, 05 Oct 2024 08:00:00 +0200
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Gesamt: 10,99 =E2=82=AC
--b1
Content-Type: text/html; charset=utf-8

<p>Gesamt: <b>10,99 &euro;</b></p>
--b1--
`)
	email, err := newTestParser().ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Spotify AB <no-reply@spotify.com>", email.From)
	assert.Equal(t, "Deine Quittung – Spotify", email.Subject)
	assert.Equal(t, "Gesamt: 10,99 €", email.Body)
	assert.True(t, time.Date(2024, 10, 5, 6, 0, 0, 0, time.UTC).Equal(email.ReceivedAt))
}

func TestParseHTMLOnlyMessage(t *testing.T) {
	raw := crlf(`From: billing@openai.com
Subject: Your ChatGPT Plus receipt
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: base64

PGh0bWw+PGhlYWQ+PHN0eWxlPnB7fTwvc3R5bGU+PC9oZWFkPjxib2R5PjxwPkFtb3VudCBwYWlk
OiAkMjAuMDA8L3A+PC9ib2R5PjwvaHRtbD4=
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="receipt.pdf"

JVBERi0xLjQK
--outer--
`)
	email, err := newTestParser().ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Amount paid: $20.00", email.Body)
	assert.True(t, email.ReceivedAt.IsZero())
}

func TestParseLatin1Body(t *testing.T) {
	raw := "From: shop@example.de\r\n" +
		"Subject: Rechnung\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"\r\n" +
		"Betrag: 9,99 \xa3 f\xfcr Ihr Abo\r\n"

	email, err := newTestParser().ParseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Betrag: 9,99 £ für Ihr Abo", email.Body)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := newTestParser().ParseMessage(strings.NewReader("not a message"))
	assert.Error(t, err)
}
