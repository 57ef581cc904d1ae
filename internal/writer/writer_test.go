package writer

import (
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/loader"
	"github.com/retroenv/retrohook/internal/pipeline"
)

func testPlan(t *testing.T) *pipeline.Plan {
	t.Helper()

	site := &hook.Site{
		Name:           "invoke",
		Variant:        hooktable.Pre,
		Required:       true,
		Enter:          0x140001000,
		Length:         5,
		OriginalTarget: 0x140005000,
		Return:         0x140001005,
		Handler:        0x7FF800001000,
		Trampoline:     0x140010000,
	}
	var err error
	site.Code, err = hook.Generate(site)
	assert.NoError(t, err)

	return &pipeline.Plan{
		BuildID: "1.5.80.0",
		Build:   hooktable.Build{Name: "Special Edition 1.5.80"},
		Module:  &loader.Module{Base: 0x140000000},
		Reports: []hook.Report{
			{Name: "invoke", Site: site},
			{Name: "loop", Err: errors.New("resolving site: unknown anchor 'main'")},
		},
	}
}

func TestWritePlan(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	w := New(&buf, Options{HexComments: true, OffsetComments: true})
	assert.NoError(t, w.WritePlan(testPlan(t)))
	out := buf.String()

	assert.Contains(t, out, "; Build: 1.5.80.0 (Special Edition 1.5.80)\n")
	assert.Contains(t, out, "; Module base address: 0x140000000\n")
	assert.Contains(t, out, "; Installed sites: 1 of 2\n")
	assert.Contains(t, out, "invoke:                          ; pre, required\n")
	assert.Contains(t, out, "push rcx")
	assert.Contains(t, out, "; 0x140010000  51\n")
	assert.Contains(t, out, ".quad 0x140001005")
	assert.Contains(t, out, "05 10 00 40 01 00 00 00\n")
	assert.Contains(t, out, "  .byte $e9, $fb, $ef, $00, $00\n")
	assert.Contains(t, out, "; loop: not installed: resolving site: unknown anchor 'main'\n")
}

func TestWriteWithoutComments(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	w := New(&buf, Options{})
	assert.NoError(t, w.WritePlan(testPlan(t)))
	out := buf.String()

	assert.Contains(t, out, "  push rcx\n")
	assert.Contains(t, out, "  .quad 0x140001005\n")
	assert.NotContains(t, out, "0x140010000")
}

func TestBundleDataWrites(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	w := New(&buf, Options{DirectivePrefix: " "})
	data := make([]byte, 18)
	data[17] = 0xAB
	assert.NoError(t, w.BundleDataWrites(data, nil))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, "   .byte $00, $ab", lines[1])
}

func TestTruncatedTrampoline(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	w := New(&buf, Options{})
	err := w.WriteReport(hook.Report{Name: "short", Site: &hook.Site{Name: "short", Code: []byte{0xC3}}})
	assert.Error(t, err)
}
