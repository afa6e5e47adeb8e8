package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(ctx context.Context, args ...string) (string, error) {
	var b strings.Builder
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&b)
	cmd.SetErr(&b)
	err := cmd.ExecuteContext(ctx)
	return b.String(), err
}

const orderSkill = `
type: order
required_parameter:
  - name: pizza
  - name: size
optional_parameter:
  - name: note
`

const greetSkill = `
type: greet
finish_message:
  - type: text
    text: Hello!
`

func writeSkills(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order.yaml"), []byte(orderSkill), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yml"), []byte(greetSkill), 0o600))
	return dir
}

func TestSkillsCommand(t *testing.T) {
	out, err := run(context.Background(), "skills", "--dir", writeSkills(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "greet\trequired=-\toptional=-", lines[0])
	assert.Equal(t, "order\trequired=pizza,size\toptional=note", lines[1])
}

func TestSkillsCommandInvalidDescriptor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("required_parameter: [{name: a}]"), 0o600))

	_, err := run(context.Background(), "skills", "--dir", dir)
	assert.ErrorContains(t, err, "skill type is required")
}

func TestCheckCommand(t *testing.T) {
	skills := writeSkills(t)
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("rules: [{intent: order, keywords: [pizza]}]"), 0o600))

	doc := `
messenger:
  line:
    channels: [{channel_id: C1, channel_secret: s}]
nlu:
  agents: [{type: keyword, rules: rules.yaml}]
skills:
  dir: ` + skills + "\n"
	path := filepath.Join(dir, "botmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := run(context.Background(), "check", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path+": ok\n", out)

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err = run(context.Background(), "check", "--config", path)
	assert.ErrorContains(t, err, "nlu.agents")
}
