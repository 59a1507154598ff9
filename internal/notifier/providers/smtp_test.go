package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("bot@example.com", "qa@example.com", "pagecheck: 旅行 FAILED", "<p>hi</p>", "hi"))

	assert.Contains(t, msg, "From: bot@example.com\r\n")
	assert.Contains(t, msg, "To: qa@example.com\r\n")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=\"utf-8\"\r\n\r\nhi\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=\"utf-8\"\r\n\r\n<p>hi</p>\r\n")
	assert.True(t, strings.HasSuffix(msg, "--pagecheck-part--\r\n"))
	assert.Less(t, strings.Index(msg, "text/plain"), strings.Index(msg, "text/html"))
}
