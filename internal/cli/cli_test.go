package cli

import (
	"os"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/options"
)

func TestParseFlags_ListingOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want options.Listing
	}{
		{
			name: "default flags",
			args: []string{"prog", "SkyrimSE.exe"},
			want: options.Listing{HexComments: true, OffsetComments: true},
		},
		{
			name: "nohexcomments flag",
			args: []string{"prog", "-nohexcomments", "SkyrimSE.exe"},
			want: options.Listing{OffsetComments: true},
		},
		{
			name: "nooffsets flag",
			args: []string{"prog", "-nooffsets", "SkyrimSE.exe"},
			want: options.Listing{HexComments: true},
		},
		{
			name: "all listing flags",
			args: []string{"prog", "-nohexcomments", "-nooffsets", "SkyrimSE.exe"},
			want: options.Listing{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			t.Cleanup(func() { os.Args = oldArgs })

			os.Args = tt.args

			opts, got, err := ParseFlags()
			assert.NoError(t, err)
			assert.Equal(t, "SkyrimSE.exe", opts.Input)
			assert.Equal(t, tt.want.HexComments, got.HexComments)
			assert.Equal(t, tt.want.OffsetComments, got.OffsetComments)
		})
	}
}

func TestParseFlags_Program(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"prog", "-build", "1.5.80.0", "-anchor", "gfx_invoke=0xF2A3C0",
		"-anchor", "main=0x100", "-graph", "CFG", "-q", "host.exe"}
	opts, _, err := ParseFlags()
	assert.NoError(t, err)
	assert.Equal(t, "1.5.80.0", opts.Build)
	assert.Equal(t, []string{"gfx_invoke=0xF2A3C0", "main=0x100"}, opts.Anchors)
	assert.Equal(t, options.GraphCFG, opts.Graph)
	assert.True(t, opts.Quiet)
	assert.Equal(t, config.FileName, opts.Config)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: []string{"prog"}},
		{name: "flag after input", args: []string{"prog", "host.exe", "-q"}},
		{name: "unknown graph", args: []string{"prog", "-graph", "tree", "host.exe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			t.Cleanup(func() { os.Args = oldArgs })

			os.Args = tt.args
			_, _, err := ParseFlags()
			assert.Error(t, err)
		})
	}
}

func TestParseFlags_List(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"prog", "-list"}
	opts, _, err := ParseFlags()
	assert.NoError(t, err)
	assert.True(t, opts.List)
}

func TestPipelineOptions(t *testing.T) {
	tests := []struct {
		name        string
		opts        options.Program
		cfg         config.Hooks
		expectError bool
		build       string
		base        uintptr
		anchors     map[string]uintptr
	}{
		{
			name:    "flags",
			opts:    options.Program{Parameters: options.Parameters{Build: "1.4.15.0", Base: "0x180000000", Anchors: []string{"gfx_invoke=0x1000"}}},
			cfg:     config.Hooks{Build: "1.5.80.0"},
			build:   "1.4.15.0",
			base:    0x180000000,
			anchors: map[string]uintptr{"gfx_invoke": 0x1000},
		},
		{
			name:    "configured build",
			cfg:     config.Hooks{Build: "1.5.80.0"},
			build:   "1.5.80.0",
			anchors: map[string]uintptr{},
		},
		{
			name:        "invalid base",
			opts:        options.Program{Parameters: options.Parameters{Base: "base"}},
			expectError: true,
		},
		{
			name:        "anchor without offset",
			opts:        options.Program{Parameters: options.Parameters{Anchors: []string{"gfx_invoke"}}},
			expectError: true,
		},
		{
			name:        "anchor with invalid offset",
			opts:        options.Program{Parameters: options.Parameters{Anchors: []string{"gfx_invoke=zz"}}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PipelineOptions(tt.opts, tt.cfg)
			if tt.expectError {
				assert.True(t, err != nil)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.build, got.Build)
			assert.Equal(t, tt.base, got.Base)
			assert.Equal(t, tt.anchors, got.Anchors)
		})
	}
}

func TestTablePath(t *testing.T) {
	assert.Equal(t, "", TablePath(options.Program{}, config.Hooks{}))
	assert.Equal(t, "cfg.toml", TablePath(options.Program{}, config.Hooks{Table: "cfg.toml"}))
	assert.Equal(t, "flag.toml", TablePath(options.Program{Parameters: options.Parameters{Table: "flag.toml"}},
		config.Hooks{Table: "cfg.toml"}))
}
