// Package convert runs the external tools that do the actual file work:
// format converters, the RINEX header modifier and the container runtime
// that hosts long-running conversions.
package convert

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrUnknownConverter is returned for a converter name missing from the registry.
var ErrUnknownConverter = eris.New("convert: unknown converter")

// Spec describes one external converter.
//
// Args may hold the placeholders {input} (first input), {inputs} (every
// input as separate arguments), {outdir}, {start} and {end} (RFC 3339), and
// {KEY} for any key of Request.Options.
type Spec struct {
	Bin        string   `yaml:"bin" mapstructure:"bin"`
	Args       []string `yaml:"args" mapstructure:"args"`
	OutputGlob string   `yaml:"output_glob" mapstructure:"output_glob"`
}

// Request is one conversion.
type Request struct {
	Inputs  []string
	OutDir  string
	Start   time.Time
	End     time.Time
	Options map[string]string
}

// Output is the converter result. An empty Path means the conversion failed
// and Info says why.
type Output struct {
	Path string
	Info string
}

// OK reports whether the conversion produced a file.
func (o Output) OK() bool { return o.Path != "" }

// Converter runs named conversions.
type Converter interface {
	Convert(ctx context.Context, name string, req Request) (Output, error)
}

// Exec runs converters as child processes.
type Exec struct {
	specs map[string]Spec
}

// NewExec creates an Exec over the named specs.
func NewExec(specs map[string]Spec) *Exec {
	return &Exec{specs: specs}
}

// Names lists the registered converters.
func (e *Exec) Names() []string {
	names := make([]string, 0, len(e.specs))
	for k := range e.specs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Convert runs the named converter. Tool failures are reported through
// Output; the error is reserved for an unknown name or an unusable request.
func (e *Exec) Convert(ctx context.Context, name string, req Request) (Output, error) {
	spec, ok := e.specs[name]
	if !ok {
		return Output{}, eris.Wrapf(ErrUnknownConverter, "%q", name)
	}
	if len(req.Inputs) == 0 {
		return Output{}, eris.New("convert: no input")
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return Output{}, eris.Wrapf(err, "convert: create %s", req.OutDir)
	}

	before, err := listDir(req.OutDir)
	if err != nil {
		return Output{}, err
	}

	args := expandArgs(spec.Args, req)
	zap.L().Debug("convert: run",
		zap.String("converter", name),
		zap.String("bin", spec.Bin),
		zap.Strings("args", args),
	)
	stderr, runErr := run(ctx, spec.Bin, args...)
	if runErr != nil {
		return Output{Info: failureInfo(runErr, stderr)}, nil
	}

	out, info := pickOutput(req.OutDir, spec.OutputGlob, before)
	return Output{Path: out, Info: info}, nil
}

func expandArgs(tmpl []string, req Request) []string {
	repl := []string{
		"{outdir}", req.OutDir,
		"{input}", req.Inputs[0],
		"{start}", formatBound(req.Start),
		"{end}", formatBound(req.End),
	}
	for k, v := range req.Options {
		repl = append(repl, "{"+k+"}", v)
	}
	r := strings.NewReplacer(repl...)

	args := make([]string, 0, len(tmpl)+len(req.Inputs))
	for _, a := range tmpl {
		if a == "{inputs}" {
			args = append(args, req.Inputs...)
			continue
		}
		args = append(args, r.Replace(a))
	}
	return args
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}

func failureInfo(err error, stderr string) string {
	if stderr == "" {
		return err.Error()
	}
	if len(stderr) > 300 {
		stderr = stderr[len(stderr)-300:]
	}
	return err.Error() + ": " + stderr
}

func listDir(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: list %s", dir)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Name()] = struct{}{}
	}
	return seen, nil
}

// pickOutput finds the file the tool created in dir. When several new files
// match, the first in name order wins.
func pickOutput(dir, glob string, before map[string]struct{}) (string, string) {
	if glob == "" {
		glob = "*"
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err.Error()
	}
	var created []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, old := before[e.Name()]; old {
			continue
		}
		if ok, _ := filepath.Match(glob, e.Name()); ok {
			created = append(created, e.Name())
		}
	}
	switch len(created) {
	case 0:
		return "", "no output matching " + glob
	case 1:
		return filepath.Join(dir, created[0]), ""
	default:
		slices.Sort(created)
		return filepath.Join(dir, created[0]), "several outputs, kept first"
	}
}
