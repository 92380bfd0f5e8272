package core_test

import (
	"io/fs"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peereval/core"
	appfs "github.com/trezcool/peereval/fs"
)

func TestEmailLayoutsEmbedded(t *testing.T) {
	for _, name := range []string{"_base.txt", "_base.gohtml"} {
		_, err := fs.Stat(appfs.FS, "assets/templates/email/"+name)
		assert.NoError(t, err, name)
	}
}

func TestEmailMessage_Render(t *testing.T) {
	conf := core.NewTestConfig()
	conf.FrontendBaseURL = "http://front.test"
	require.NoError(t, core.ParseEmailTemplates(conf))

	t.Run("password reset", func(t *testing.T) {
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: "Ada Lovelace", Address: "ada@uni.test"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{
				"Name":      "Ada Lovelace",
				"Username":  "ada",
				"Token":     "tok-123",
				"ExpiresIn": "1h0m0s",
			},
		}
		require.NoError(t, msg.Render(conf))
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "Hello Ada Lovelace,")
		assert.Contains(t, msg.TextContent, `account "ada"`)
		assert.Contains(t, msg.TextContent, "http://front.test/reset-password?token=tok-123")
		assert.Contains(t, msg.HTMLContent, "tok-123")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &core.EmailMessage{Subject: "Hi", BodyStr: "plain text"}
		require.NoError(t, msg.Render(conf))
		assert.Equal(t, "plain text", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})
}
