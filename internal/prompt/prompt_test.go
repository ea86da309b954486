package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_ContainsInstructionsAndEmails(t *testing.T) {
	emails := "From: alice@example.com\nSubject: Invoice\nPlease pay by Friday.\n---\nFrom: bob@example.com\nSubject: Lunch\nNoon?"

	p := Build(emails)

	assert.Contains(t, p, "expert email summarization system")
	assert.Contains(t, p, "3-4 bullet points")
	assert.Contains(t, p, "fields sender, subject, summary")
	assert.Contains(t, p, "EMAIL DATA:\n---\nFrom: alice@example.com")
	assert.True(t, strings.HasSuffix(p, "Noon?\n---\n"), "email data must be closed by a delimiter")
}

func TestBuild_TrimsSurroundingWhitespace(t *testing.T) {
	p := Build("\n\n  hello  \n\n")
	assert.Contains(t, p, "---\nhello\n---\n")
}

func TestCountEmails(t *testing.T) {
	cases := []struct {
		name   string
		emails string
		want   int
	}{
		{"empty", "", 0},
		{"single", "From: a\nhi", 1},
		{"two", "From: a\nhi\n---\nFrom: b\nyo", 2},
		{"leading and trailing delimiters", "---\nFrom: a\n---\n\n---\nFrom: b\n---\n", 2},
		{"delimiter with spaces", "a\n  ---  \nb", 2},
		{"dashes inside text are not delimiters", "a --- b\nc", 1},
		{"crlf", "a\r\n---\r\nb", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CountEmails(tc.emails))
		})
	}
}
