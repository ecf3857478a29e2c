package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/willabides/loglines"
	"go.uber.org/zap"
)

func Test_scan(t *testing.T) {
	input := "a\\nbb\n\nccc\n{\"x\":1}\n"

	t.Run("total", func(t *testing.T) {
		var out bytes.Buffer
		st, err := scan(strings.NewReader(input), scannerOptions(&cliOptions{}, zap.NewNop()), &out, false)
		require.NoError(t, err)
		require.Equal(t, stats{total: 13, lines: 5, lastLine: 4}, st)
		require.Empty(t, out.String())
	})

	t.Run("print", func(t *testing.T) {
		var out bytes.Buffer
		opts := scannerOptions(&cliOptions{SkipBlank: true}, zap.NewNop())
		_, err := scan(strings.NewReader(input), opts, &out, true)
		require.NoError(t, err)
		require.Equal(t, "1\ta\n1\tbb\n3\tccc\n4\t{\"x\":1}\n", out.String())
	})

	t.Run("lines mode", func(t *testing.T) {
		var out bytes.Buffer
		opts := scannerOptions(&cliOptions{Mode: "lines", OnlyJSON: true}, zap.NewNop())
		st, err := scan(strings.NewReader(input), opts, &out, true)
		require.NoError(t, err)
		require.Equal(t, stats{total: 7, lines: 1, lastLine: 4}, st)
		require.Equal(t, "4\t{\"x\":1}\n", out.String())
	})

	t.Run("contains", func(t *testing.T) {
		var out bytes.Buffer
		opts := scannerOptions(&cliOptions{Contains: "b"}, zap.NewNop())
		_, err := scan(strings.NewReader(input), opts, &out, true)
		require.NoError(t, err)
		require.Equal(t, "1\tbb\n", out.String())
	})

	t.Run("read error", func(t *testing.T) {
		boom := errors.New("boom")
		opts := scannerOptions(&cliOptions{}, zap.NewNop())
		_, err := scan(iotest.ErrReader(boom), opts, &bytes.Buffer{}, false)
		require.ErrorIs(t, err, boom)
	})
}

// flakyReader fails the reads listed in failAt (1-based) and otherwise
// hands out data chunkSize bytes at a time.
type flakyReader struct {
	data   string
	failAt map[int]bool
	failed int
	reads  int
}

var errTransient = errors.New("transient")

func (r *flakyReader) Read(p []byte) (int, error) {
	r.reads++
	if r.failAt[r.reads] {
		r.failed++
		return 0, errTransient
	}
	if r.data == "" {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func Test_scan_retryOnError(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		src := &flakyReader{data: "ab\ncd\n", failAt: map[int]bool{2: true}}
		opts := scannerOptions(&cliOptions{RetryOnError: true, ChunkSize: 2}, zap.NewNop())
		var out bytes.Buffer
		st, err := scan(src, opts, &out, true)
		require.NoError(t, err)
		require.Equal(t, stats{total: 4, lines: 2, lastLine: 2}, st)
		require.Equal(t, "1\tab\n2\tcd\n", out.String())
		require.Equal(t, 1, src.failed)
	})

	t.Run("gives up", func(t *testing.T) {
		failAt := map[int]bool{}
		for i := 2; i < 100; i++ {
			failAt[i] = true
		}
		src := &flakyReader{data: "ab\ncd\n", failAt: failAt}
		opts := scannerOptions(&cliOptions{RetryOnError: true, ChunkSize: 2}, zap.NewNop())
		_, err := scan(src, opts, &bytes.Buffer{}, false)
		require.ErrorIs(t, err, errTransient)
		require.Equal(t, maxReadRetries+1, src.failed)
	})

	t.Run("fail without retry", func(t *testing.T) {
		src := &flakyReader{data: "ab\ncd\n", failAt: map[int]bool{2: true}}
		opts := scannerOptions(&cliOptions{ChunkSize: 2}, zap.NewNop())
		st, err := scan(src, opts, &bytes.Buffer{}, false)
		require.ErrorIs(t, err, errTransient)
		require.Equal(t, stats{}, st)
		require.Equal(t, 1, src.failed)
	})
}

func Test_run(t *testing.T) {
	name := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(name, []byte("a\\nb\nc\n"), 0o600))
	opts := &cliOptions{Source: name, Mode: "sub-lines", Compression: "auto", ChunkSize: 8192, Print: true}
	var out bytes.Buffer
	st, err := run(context.Background(), opts, zap.NewNop(), &out)
	require.NoError(t, err)
	require.Equal(t, stats{total: 3, lines: 3, lastLine: 2}, st)
	require.Equal(t, "1\ta\n1\tb\n2\tc\n", out.String())

	opts.Source = filepath.Join(t.TempDir(), "missing.log")
	_, err = run(context.Background(), opts, zap.NewNop(), &out)
	require.Error(t, err)
}

func Test_scannerOptions(t *testing.T) {
	opts := scannerOptions(&cliOptions{
		Mode:         "lines",
		ChunkSize:    16,
		RetryOnError: true,
		SkipBlank:    true,
		OnlyJSON:     true,
	}, zap.NewNop())
	require.Equal(t, loglines.ModeLines, opts.Mode)
	require.Equal(t, 16, opts.ChunkSize)
	require.Equal(t, loglines.RetryOnError, opts.OnReadError)
	require.Len(t, opts.Filters, 3)
}

func Test_cliOptions_validate(t *testing.T) {
	valid := cliOptions{Mode: "sub-lines", Compression: "auto", ChunkSize: 8192}
	require.NoError(t, valid.validate())

	bad := valid
	bad.Mode = "words"
	require.EqualError(t, bad.validate(), `invalid mode "words"`)

	bad = valid
	bad.Compression = "lz4"
	require.EqualError(t, bad.validate(), `invalid compression "lz4"`)

	bad = valid
	bad.ChunkSize = 0
	require.EqualError(t, bad.validate(), "chunk size must be positive, got 0")
}
