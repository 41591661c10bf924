package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleOf(t *testing.T) {
	cases := map[string]string{
		"account.create":               "account",
		"account.createWithProducts":   "account",
		"product":                      "product",
		"":                             "",
		"billing.invoice.create.later": "billing",
	}

	for in, want := range cases {
		assert.Equal(t, want, ModuleOf(in), in)
	}
}

func TestMetaMapRoundTrip(t *testing.T) {
	meta := Meta{CorrelationID: "c-1", UserID: "u-1", Source: "web"}

	m := meta.ToMap()
	assert.Len(t, m, 3)
	assert.Equal(t, meta, MetaFromMap(m))
	assert.True(t, MetaFromMap(nil).IsZero())
}

func TestWithMetaDoesNotMutateOriginal(t *testing.T) {
	env := New("account.create", map[string]any{"name": "ann"}, nil)
	enriched := env.WithMeta(Meta{CommandID: "cmd-1"})

	assert.Nil(t, env.Meta)
	assert.Equal(t, "cmd-1", enriched.MetaOrEmpty().CommandID)
	assert.Equal(t, "account", enriched.Module())
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "commandbus_command_account_create", TopicForCommand("account.create"))
	assert.Equal(t, "commandbus_reply_orders", ReplyTopic("orders"))
	assert.Equal(t, "commandbus_reply_default", ReplyTopic(" "))
}
