package fileprocessor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/options"
	"github.com/retroenv/retrohook/internal/pipeline"
)

func testPlan(t *testing.T) *pipeline.Plan {
	t.Helper()

	site := &hook.Site{
		Name:           "loop",
		Variant:        hooktable.Post,
		Enter:          0x140001000,
		Length:         6,
		OriginalTarget: 0x140005000,
		Return:         0x140001006,
		Handler:        0x7FF800001000,
		Trampoline:     0x140010000,
	}
	var err error
	site.Code, err = hook.Generate(site)
	assert.NoError(t, err)

	return &pipeline.Plan{
		BuildID: "1.4.15.0",
		Build:   hooktable.Build{Name: "VR 1.4.15"},
		Reports: []hook.Report{{Name: "loop", Site: site}},
	}
}

func TestWriteOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		graph  string
		expect string
	}{
		{name: "listing", graph: options.GraphNone, expect: "; Build: 1.4.15.0 (VR 1.4.15)"},
		{name: "call graph", graph: options.GraphCalls, expect: "digraph callgraph {"},
		{name: "control flow graph", graph: options.GraphCFG, expect: "digraph cfg {"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf strings.Builder
			assert.NoError(t, WriteOutput(&buf, testPlan(t), tt.graph, options.NewListing()))
			assert.Contains(t, buf.String(), tt.expect)
		})
	}

	var buf strings.Builder
	assert.Error(t, WriteOutput(&buf, testPlan(t), "tree", options.NewListing()))
}

func TestPrintBuilds(t *testing.T) {
	t.Parallel()

	table, err := LoadTable("")
	assert.NoError(t, err)

	var buf strings.Builder
	assert.NoError(t, PrintBuilds(&buf, table))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, len(table.IDs()))
	assert.True(t, strings.HasPrefix(lines[0], "1.4.15.0"))
	assert.Contains(t, buf.String(), "event sinks")
}

func TestLoadTableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.toml")
	assert.NoError(t, os.WriteFile(path, []byte(`
[builds."test"]
name = "Test"

  [[builds."test".sites]]
  name = "tick"
  offset = 0x500
  opcode = 0xE8
  variant = "post"
  handler = "frame"
`), 0o600))

	table, err := LoadTable(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"test"}, table.IDs())

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestProcessFileMissingInput(t *testing.T) {
	t.Parallel()

	opts := options.Program{
		Parameters: options.Parameters{Input: filepath.Join(t.TempDir(), "SkyrimSE.exe")},
		Flags:      options.Flags{Quiet: true},
	}
	err := ProcessFile(context.Background(), log.NewTestLogger(t), opts, options.NewListing(), config.Default())
	assert.ErrorContains(t, err, "loading executable")
}
