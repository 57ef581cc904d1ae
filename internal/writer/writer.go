// Package writer implements the listing output of planned hooks.
package writer

import (
	"fmt"
	"io"
	"strings"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/pipeline"
)

const dataBytesPerLine = 16

type lineWriterFunc func(line string, byteCount int) error

// Writer writes a plan as an assembly style listing.
type Writer struct {
	options Options
	writer  io.Writer
}

// Options of the writer.
type Options struct {
	DirectivePrefix string
	HexComments     bool
	OffsetComments  bool
}

// New creates a new writer.
func New(writer io.Writer, options Options) *Writer {
	return &Writer{
		options: options,
		writer:  writer,
	}
}

// WritePlan writes the header and every site of the plan.
func (w Writer) WritePlan(plan *pipeline.Plan) error {
	if err := w.WriteCommentHeader(plan); err != nil {
		return err
	}

	for _, report := range plan.Reports {
		if err := w.WriteReport(report); err != nil {
			return fmt.Errorf("writing site '%s': %w", report.Name, err)
		}
	}
	return nil
}

// WriteCommentHeader writes the build and the install summary as comments.
func (w Writer) WriteCommentHeader(plan *pipeline.Plan) error {
	if _, err := fmt.Fprintf(w.writer, "; Build: %s (%s)\n", plan.BuildID, plan.Build.Name); err != nil {
		return fmt.Errorf("writing build: %w", err)
	}
	if plan.Module != nil {
		if _, err := fmt.Fprintf(w.writer, "; Module base address: 0x%X\n", plan.Module.Base); err != nil {
			return fmt.Errorf("writing base address: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w.writer, "; Installed sites: %d of %d\n", plan.Installed(), len(plan.Reports)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// WriteReport writes the outcome of a single site. Installed sites are
// written as labeled trampoline listing followed by the site patch.
func (w Writer) WriteReport(report hook.Report) error {
	if _, err := fmt.Fprintln(w.writer); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}

	if report.Err != nil {
		if _, err := fmt.Fprintf(w.writer, "; %s: not installed: %s\n", report.Name, report.Err); err != nil {
			return fmt.Errorf("writing failure: %w", err)
		}
		return nil
	}

	site := report.Site
	comment := string(site.Variant)
	if site.Required {
		comment += ", required"
	}
	if err := w.writeLabel(site.Name, comment); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.writer, "  ; enter 0x%X, target 0x%X, return 0x%X, live %s\n",
		site.Enter, site.OriginalTarget, site.Return, site.Live); err != nil {
		return fmt.Errorf("writing site details: %w", err)
	}

	if err := w.writeTrampoline(site); err != nil {
		return err
	}

	patch, err := hook.Patch(site)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}
	if err := w.writeLabel(site.Name+"_patch", fmt.Sprintf("0x%X", site.Enter)); err != nil {
		return err
	}
	if err := w.BundleDataWrites(patch, nil); err != nil {
		return fmt.Errorf("writing patch: %w", err)
	}
	return nil
}

func (w Writer) writeTrampoline(site *hook.Site) error {
	if len(site.Code) < x64.AbsJumpSize {
		return fmt.Errorf("trampoline of %d bytes is truncated", len(site.Code))
	}

	code := site.Code[:len(site.Code)-x64.AbsJumpLiteralSize]
	insts, err := x64.Decode(code, uint64(site.Trampoline))
	if err != nil {
		return fmt.Errorf("decoding trampoline: %w", err)
	}

	for _, inst := range insts {
		if err := w.writeCodeLine(inst.Text, w.instructionComment(inst)); err != nil {
			return fmt.Errorf("writing code line: %w", err)
		}
	}

	literal := site.Code[len(code):]
	line := fmt.Sprintf("%s.quad 0x%X", w.options.DirectivePrefix, site.Return)
	var comment string
	if w.options.OffsetComments {
		comment = fmt.Sprintf("0x%X", site.Trampoline+uintptr(len(code)))
	}
	if w.options.HexComments {
		comment = strings.TrimSpace(comment + "  " + hexBytes(literal))
	}
	return w.writeCodeLine(line, comment)
}

func (w Writer) instructionComment(inst x64.Inst) string {
	var parts []string
	if w.options.OffsetComments {
		parts = append(parts, fmt.Sprintf("0x%X", inst.Addr))
	}
	if w.options.HexComments {
		parts = append(parts, hexBytes(inst.Raw))
	}
	return strings.Join(parts, "  ")
}

// BundleDataWrites bundles writes of data bytes to print dataBytesPerLine bytes per line.
func (w Writer) BundleDataWrites(data []byte, lineWriter lineWriterFunc) error {
	remaining := len(data)
	for i := 0; remaining > 0; {
		toWrite := min(remaining, dataBytesPerLine)

		buf := &strings.Builder{}
		if _, err := fmt.Fprintf(buf, "%s.byte ", w.options.DirectivePrefix); err != nil {
			return fmt.Errorf("writing data prefix: %w", err)
		}

		for j := range toWrite {
			if _, err := fmt.Fprintf(buf, "$%02x, ", data[i+j]); err != nil {
				return fmt.Errorf("writing data byte: %w", err)
			}
		}

		line := strings.TrimRight(buf.String(), ", ")

		if lineWriter != nil {
			if err := lineWriter(line, toWrite); err != nil {
				return fmt.Errorf("writing data line using custom writer: %w", err)
			}
		} else {
			if _, err := fmt.Fprintf(w.writer, "  %s\n", line); err != nil {
				return fmt.Errorf("writing data line: %w", err)
			}
		}

		i += toWrite
		remaining -= toWrite
	}

	return nil
}

func (w Writer) writeLabel(label, comment string) error {
	if comment == "" {
		if _, err := fmt.Fprintf(w.writer, "%s:\n", label); err != nil {
			return fmt.Errorf("writing label: %w", err)
		}
		return nil
	}
	if _, err := fmt.Fprintf(w.writer, "%-32s ; %s\n", label+":", comment); err != nil {
		return fmt.Errorf("writing label: %w", err)
	}
	return nil
}

func (w Writer) writeCodeLine(code, comment string) error {
	if comment == "" {
		if _, err := fmt.Fprintf(w.writer, "  %s\n", code); err != nil {
			return fmt.Errorf("writing line: %w", err)
		}
		return nil
	}
	if _, err := fmt.Fprintf(w.writer, "  %-30s ; %s\n", code, comment); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}

func hexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
