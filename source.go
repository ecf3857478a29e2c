package loglines

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
)

// Compression is the encoding of a source.
type Compression string

// Supported compressions
const (
	CompressionAuto Compression = "auto"
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// SourceOptions are options for OpenSource
type SourceOptions struct {
	// StorageClient is used for gs:// sources. When nil an unauthenticated
	// client is created and closed with the source.
	StorageClient *storage.Client
	Compression   Compression
}

// OpenSource opens name for scanning. name is "-" (or empty) for stdin, a
// gs://bucket/object URL or a local path. Compressed sources are decoded.
func OpenSource(ctx context.Context, name string, opts *SourceOptions) (io.ReadCloser, error) {
	if opts == nil {
		opts = new(SourceOptions)
	}
	src := new(sourceReader)
	var err error
	switch {
	case name == "" || name == "-":
		src.rdr = io.NopCloser(os.Stdin)
	case strings.HasPrefix(name, "gs://"):
		err = src.openObject(ctx, strings.TrimPrefix(name, "gs://"), opts)
	default:
		var file *os.File
		file, err = os.Open(name)
		if err == nil {
			src.rdr = file
		}
	}
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "opening %s", name), src.Close())
	}
	err = src.decode(opts.Compression)
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "decoding %s", name), src.Close())
	}
	return src, nil
}

type sourceReader struct {
	rdr    io.ReadCloser
	client *storage.Client
	gzRdr  *gzip.Reader
	zstd   *zstd.Decoder
	r      io.Reader
}

func (z *sourceReader) openObject(ctx context.Context, path string, opts *SourceOptions) error {
	bucket, obj := path, ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		bucket, obj = path[:i], path[i+1:]
	}
	if bucket == "" || obj == "" {
		return errors.Errorf("invalid object path %q", path)
	}
	client := opts.StorageClient
	if client == nil {
		var err error
		client, err = storage.NewClient(ctx, option.WithoutAuthentication())
		if err != nil {
			return err
		}
		z.client = client
	}
	rdr, err := client.Bucket(bucket).Object(obj).NewReader(ctx)
	if err != nil {
		return err
	}
	z.rdr = rdr
	return nil
}

func (z *sourceReader) decode(compression Compression) error {
	br := bufio.NewReader(z.rdr)
	if compression == "" || compression == CompressionAuto {
		compression = CompressionNone
		head, err := br.Peek(len(zstdMagic))
		if err != nil && err != io.EOF {
			return err
		}
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			compression = CompressionGzip
		case bytes.HasPrefix(head, zstdMagic):
			compression = CompressionZstd
		}
	}
	var err error
	switch compression {
	case CompressionNone:
		z.r = br
	case CompressionGzip:
		z.gzRdr, err = gzip.NewReader(br)
		if err == nil {
			z.r = z.gzRdr
		}
	case CompressionZstd:
		z.zstd, err = zstd.NewReader(br)
		if err == nil {
			z.r = z.zstd
		}
	default:
		err = errors.Errorf("unknown compression %q", compression)
	}
	return err
}

func (z *sourceReader) Read(p []byte) (int, error) {
	return z.r.Read(p)
}

func (z *sourceReader) Close() error {
	var err error
	if z.gzRdr != nil {
		err = multierr.Append(err, z.gzRdr.Close())
	}
	if z.zstd != nil {
		z.zstd.Close()
	}
	if z.rdr != nil {
		err = multierr.Append(err, z.rdr.Close())
	}
	if z.client != nil {
		err = multierr.Append(err, z.client.Close())
	}
	return err
}
