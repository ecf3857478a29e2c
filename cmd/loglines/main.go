package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/willabides/loglines"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type cliOptions struct {
	Source       string `kong:"arg,optional,default='-',help='file to scan, gs://bucket/object, or - for stdin'"`
	Mode         string `kong:"default='sub-lines',help='split on escaped breaks too (sub-lines) or on newlines only (lines)'"`
	ChunkSize    int    `kong:"default=8192,help='bytes requested per read'"`
	RetryOnError bool   `kong:"help='keep reading after a read error instead of stopping'"`
	Compression  string `kong:"default='auto',help='source compression: auto, none, gzip or zstd'"`
	SkipBlank    bool   `kong:"help='skip blank lines'"`
	OnlyJSON     bool   `kong:"name=only-json,help='skip lines that are not valid json objects'"`
	Contains     string `kong:"help='only keep lines containing this string'"`
	Print        bool   `kong:"help='print each line prefixed with its line number'"`
	Human        bool   `kong:"help='print the total in human readable units'"`
	Verbose      bool   `kong:"short=v,help='debug logging to stderr'"`
}

var cli cliOptions

func (c *cliOptions) validate() error {
	switch c.Mode {
	case "sub-lines", "lines":
	default:
		return errors.Errorf("invalid mode %q", c.Mode)
	}
	switch loglines.Compression(c.Compression) {
	case loglines.CompressionAuto, loglines.CompressionNone, loglines.CompressionGzip, loglines.CompressionZstd:
	default:
		return errors.Errorf("invalid compression %q", c.Compression)
	}
	if c.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

type stats struct {
	total    int64
	lines    int
	lastLine int
}

func newLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

func scannerOptions(opts *cliOptions, logger *zap.Logger) *loglines.Options {
	out := &loglines.Options{
		ChunkSize: opts.ChunkSize,
		Logger:    logger,
	}
	if opts.Mode == "lines" {
		out.Mode = loglines.ModeLines
	}
	if opts.RetryOnError {
		out.OnReadError = loglines.RetryOnError
	}
	if opts.SkipBlank {
		out.Filters = append(out.Filters, loglines.SkipBlank())
	}
	if opts.OnlyJSON {
		out.Filters = append(out.Filters, loglines.OnlyJSONObjects(), loglines.ValidJSON())
	}
	if opts.Contains != "" {
		out.Filters = append(out.Filters, loglines.Contains([]byte(opts.Contains)))
	}
	return out
}

// maxReadRetries is how many read errors in a row are tolerated with
// --retry-on-error before the scan gives up.
const maxReadRetries = 5

// scan drives the scanner to the end of src. Lines are written to w when
// printLines is set.
func scan(src io.Reader, opts *loglines.Options, w io.Writer, printLines bool) (stats, error) {
	var st stats
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bw := bufio.NewWriter(w)
	scanner := loglines.New(src, opts)
	var err error
	var failures int
	for {
		var line loglines.LogLine
		line, err = scanner.Next()
		var readErr *loglines.ReadError
		if errors.As(err, &readErr) && opts.OnReadError == loglines.RetryOnError && failures < maxReadRetries {
			failures++
			logger.Warn("retrying after read error", zap.Int("attempt", failures), zap.Error(err))
			continue
		}
		if err != nil {
			break
		}
		failures = 0
		st.total += int64(len(line.Bytes))
		st.lines++
		st.lastLine = line.Number
		if !printLines {
			continue
		}
		bw.WriteString(strconv.Itoa(line.Number))
		bw.WriteByte('\t')
		bw.Write(line.Bytes)
		bw.WriteByte('\n')
	}
	if err == io.EOF {
		err = nil
	}
	flushErr := bw.Flush()
	if err == nil {
		err = flushErr
	}
	return st, err
}

// run opens the source, scans it and closes it.
func run(ctx context.Context, opts *cliOptions, logger *zap.Logger, w io.Writer) (stats, error) {
	src, err := loglines.OpenSource(ctx, opts.Source, &loglines.SourceOptions{
		Compression: loglines.Compression(opts.Compression),
	})
	if err != nil {
		return stats{}, err
	}
	logger.Debug("scanning", zap.String("source", opts.Source), zap.String("mode", opts.Mode))
	st, err := scan(src, scannerOptions(opts, logger), w, opts.Print)
	return st, multierr.Append(errors.Wrap(err, "scanning"), src.Close())
}

func main() {
	k := kong.Parse(&cli)
	k.FatalIfErrorf(cli.validate(), "invalid flags")
	logger := newLogger(cli.Verbose)

	st, err := run(context.Background(), &cli, logger, os.Stdout)
	logger.Debug("done", zap.Int("slices", st.lines), zap.Int("lines", st.lastLine))
	_ = logger.Sync() //nolint:errcheck // stderr sync errors are not actionable
	k.FatalIfErrorf(err, "error scanning source")

	if cli.Human {
		fmt.Printf("Total: %s\n", humanize.Bytes(uint64(st.total)))
		return
	}
	fmt.Printf("Total: %d\n", st.total)
}
