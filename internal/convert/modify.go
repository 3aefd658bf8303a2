package convert

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ModifyOptions is the fixed option set passed to the header modifier.
type ModifyOptions struct {
	// Compression of the written file, e.g. "gz". Empty keeps it plain.
	Compression string `yaml:"compression" mapstructure:"compression"`
	// LongName renames the output to the RINEX 3 long convention.
	LongName bool `yaml:"long_name" mapstructure:"long_name"`
	// Metadata is the sitelog file or directory used to rewrite the header.
	Metadata string `yaml:"metadata" mapstructure:"metadata"`
	// TolerantPeriod accepts files whose content does not fill the nominal period.
	TolerantPeriod bool `yaml:"tolerant_period" mapstructure:"tolerant_period"`
}

// HeaderModifier rewrites RINEX headers with an external tool invoked as
//
//	bin -i <input> -o <outdir> [-c comp] [-n] [-k metadata] [-t]
type HeaderModifier struct {
	bin string
}

// NewHeaderModifier creates a HeaderModifier. If bin is empty, "rinexmod" is used.
func NewHeaderModifier(bin string) *HeaderModifier {
	if bin == "" {
		bin = "rinexmod"
	}
	return &HeaderModifier{bin: bin}
}

func (h *HeaderModifier) args(input, outDir string, opts ModifyOptions) []string {
	args := []string{"-i", input, "-o", outDir}
	if opts.Compression != "" {
		args = append(args, "-c", opts.Compression)
	}
	if opts.LongName {
		args = append(args, "-n")
	}
	if opts.Metadata != "" {
		args = append(args, "-k", opts.Metadata)
	}
	if opts.TolerantPeriod {
		args = append(args, "-t")
	}
	return args
}

// Modify rewrites input into outDir and returns the path of the new file.
// Unlike converters, any failure is an error.
func (h *HeaderModifier) Modify(ctx context.Context, input, outDir string, opts ModifyOptions) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "convert: create %s", outDir)
	}
	before, err := listDir(outDir)
	if err != nil {
		return "", err
	}

	args := h.args(input, outDir, opts)
	zap.L().Debug("convert: header modify", zap.String("bin", h.bin), zap.Strings("args", args))
	stderr, err := run(ctx, h.bin, args...)
	if err != nil {
		return "", eris.Wrapf(err, "convert: %s failed for %s: %s", h.bin, input, stderr)
	}

	out, info := pickOutput(outDir, "*", before)
	if out == "" {
		return "", eris.Errorf("convert: %s produced nothing for %s: %s", h.bin, input, info)
	}
	return out, nil
}
