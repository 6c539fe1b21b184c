package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSingleManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "build.hcl", `
action "compile" {
  owner   = "//pkg:a"
  command = ["cc", "-c", "src/a.c", "-o", "out/a.o"]
  inputs  = ["src/a.c", "src/a.h"]
  outputs = ["out/a.o"]
}

group "headers" {
  owner   = "//pkg:headers"
  members = ["src/a.h", "src/b.h"]
}
`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, model.Actions, 1)
	act := model.Actions[0]
	assert.Equal(t, "compile", act.Name)
	assert.Equal(t, "//pkg:a", act.Owner)
	assert.Equal(t, []string{"cc", "-c", "src/a.c", "-o", "out/a.o"}, act.Command)
	assert.Equal(t, []string{"src/a.c", "src/a.h"}, act.Inputs)
	assert.Equal(t, act.Inputs, act.MandatoryInputs, "all inputs are mandatory by default")
	assert.False(t, act.Volatile)

	require.Len(t, model.Groups, 1)
	assert.Equal(t, "headers", model.Groups[0].Name)
	assert.Equal(t, []string{"src/a.h", "src/b.h"}, model.Groups[0].Members)
}

func TestLoadActionFlags(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "build.hcl", `
action "stamp" {
  command             = ["date"]
  outputs             = ["out/stamp"]
  volatile            = true
  discovers_inputs    = true
  notify_on_cache_hit = true
  shared_key          = "stamp-work"
  inputs              = ["a", "b"]
  mandatory_inputs    = ["a"]
}
`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	act := model.Actions[0]
	assert.True(t, act.Volatile)
	assert.True(t, act.DiscoversInputs)
	assert.True(t, act.NotifyOnCacheHit)
	assert.Equal(t, "stamp-work", act.SharedKey)
	assert.Equal(t, []string{"a"}, act.MandatoryInputs, "an explicit mandatory set is kept as-is")
}

func TestLoadVariableInterpolation(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "build.hcl", `
vars {
  cc      = "clang"
  src_dir = "src"
}

action "compile" {
  command = [var.cc, "-c", "${var.src_dir}/a.c"]
  inputs  = ["${var.src_dir}/a.c"]
  outputs = ["out/a.o"]
}
`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	act := model.Actions[0]
	assert.Equal(t, []string{"clang", "-c", "src/a.c"}, act.Command)
	assert.Equal(t, []string{"src/a.c"}, act.Inputs)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "vars.hcl", `
vars {
  out = "out"
}
`)
	writeManifest(t, dir, "actions.hcl", `
action "compile" {
  command = ["cc"]
  outputs = ["${var.out}/a.o"]
}
`)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeManifest(t, sub, "more.hcl", `
action "link" {
  command = ["ld"]
  inputs  = ["${var.out}/a.o"]
  outputs = ["${var.out}/bin"]
}
`)

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, model.Actions, 2)
	names := []string{model.Actions[0].Name, model.Actions[1].Name}
	assert.ElementsMatch(t, []string{"compile", "link"}, names)
	for _, act := range model.Actions {
		if act.Name == "link" {
			assert.Equal(t, []string{"out/a.o"}, act.Inputs, "vars declared in a sibling file are in scope")
		}
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.Error(t, err)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), t.TempDir())
		assert.ErrorContains(t, err, "no .hcl manifest files")
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := t.TempDir()
		path := writeManifest(t, dir, "bad.hcl", `action "x" {`)
		_, err := NewLoader().Load(context.Background(), path)
		assert.ErrorContains(t, err, "parsing manifest")
	})

	t.Run("unknown variable", func(t *testing.T) {
		dir := t.TempDir()
		path := writeManifest(t, dir, "bad.hcl", `
action "x" {
  command = [var.nope]
  outputs = ["out/x"]
}
`)
		_, err := NewLoader().Load(context.Background(), path)
		assert.ErrorContains(t, err, "decoding manifest")
	})

	t.Run("duplicate variable", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, "a.hcl", `
vars {
  cc = "gcc"
}
`)
		writeManifest(t, dir, "b.hcl", `
vars {
  cc = "clang"
}

action "x" {
  command = ["true"]
  outputs = ["out/x"]
}
`)
		_, err := NewLoader().Load(context.Background(), dir)
		assert.ErrorContains(t, err, `variable "cc" declared more than once`)
	})

	t.Run("missing required attribute", func(t *testing.T) {
		dir := t.TempDir()
		path := writeManifest(t, dir, "bad.hcl", `
action "x" {
  command = ["true"]
}
`)
		_, err := NewLoader().Load(context.Background(), path)
		assert.ErrorContains(t, err, "decoding manifest")
	})
}
