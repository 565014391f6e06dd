package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/ir"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(postConfig(), Hooks{Authors: actorAuthors}))

	m, err := reg.Lookup("post")
	require.NoError(t, err)
	assert.Equal(t, "post", m.Config.Type)
	assert.NotNil(t, m.Policy)
	assert.Equal(t, []string{"post"}, reg.Types())

	err = reg.Register(postConfig(), Hooks{Authors: actorAuthors})
	assert.True(t, IsConfigError(err), "duplicate type")

	_, err = reg.Lookup("comment")
	assert.True(t, IsConfigError(err))
}

func TestRegistry_ConfigFrozen(t *testing.T) {
	reg := NewRegistry()
	cfg := postConfig()
	require.NoError(t, reg.Register(cfg, Hooks{Authors: actorAuthors}))

	cfg.Tracked[0] = "mutated"
	cfg.Defaults["title"] = s("mutated")

	m, err := reg.Lookup("post")
	require.NoError(t, err)
	assert.Equal(t, "title", m.Config.Tracked[0])
	assert.Equal(t, s("Untitled"), m.Config.Defaults["title"])
}

func TestRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(*ir.ModelConfig)
		hooks Hooks
	}{
		{"missing type", func(c *ir.ModelConfig) { c.Type = "" }, Hooks{Authors: actorAuthors}},
		{"missing author resolver", nil, Hooks{}},
		{"tracked and stored overlap", func(c *ir.ModelConfig) { c.Stored = append(c.Stored, "title") }, Hooks{Authors: actorAuthors}},
		{"tracked twice", func(c *ir.ModelConfig) { c.Tracked = append(c.Tracked, "body") }, Hooks{Authors: actorAuthors}},
		{"stored twice", func(c *ir.ModelConfig) { c.Stored = append(c.Stored, "slug") }, Hooks{Authors: actorAuthors}},
		{"empty field name", func(c *ir.ModelConfig) { c.Tracked = append(c.Tracked, "") }, Hooks{Authors: actorAuthors}},
		{"default for stored field", func(c *ir.ModelConfig) { c.Defaults = ir.Fields{"slug": s("x")} }, Hooks{Authors: actorAuthors}},
		{"default for unknown field", func(c *ir.ModelConfig) { c.Defaults = ir.Fields{"nope": s("x")} }, Hooks{Authors: actorAuthors}},
		{"bad retention", func(c *ir.ModelConfig) { c.Retention = "forever" }, Hooks{Authors: actorAuthors}},
		{"rule without decision", func(c *ir.ModelConfig) {
			c.Rules = []ir.RuleSpec{{Name: "r", Expr: "true"}}
		}, Hooks{Authors: actorAuthors}},
		{"rule does not compile", func(c *ir.ModelConfig) {
			c.Rules = []ir.RuleSpec{{Name: "r", Expr: "pending.", Decision: ir.DecisionApprove}}
		}, Hooks{Authors: actorAuthors}},
		{"duplicate rule names", func(c *ir.ModelConfig) {
			c.Rules = []ir.RuleSpec{
				{Name: "r", Expr: "true", Decision: ir.DecisionApprove},
				{Name: "r", Expr: "false", Decision: ir.DecisionDeny},
			}
		}, Hooks{Authors: actorAuthors}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := postConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			err := NewRegistry().Register(cfg, tt.hooks)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "got %v", err)
		})
	}
}
