// Package loader reads a spreadsheet in the background: a short preview
// first so the table can show something, then the full sheet.
package loader

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"colmatch-service/internal/dataset"
	"colmatch-service/internal/fileio"
)

const (
	DefaultPreviewRows = 20
	DefaultBatchSize   = 500
)

type EventKind int

const (
	PreviewReady EventKind = iota
	FullReady
	Failed
)

func (k EventKind) String() string {
	switch k {
	case PreviewReady:
		return "preview"
	case FullReady:
		return "full"
	default:
		return "failed"
	}
}

type Event struct {
	Kind    EventKind
	Dataset *dataset.Dataset
	Err     error
}

// Source is something that can be opened more than once (preview + full read).
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

func FromFile(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func FromBytes(name string, b []byte) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil },
	}
}

type Options struct {
	HeaderRow   int
	Sheet       string
	PreviewRows int // 0: DefaultPreviewRows, <0: без превью
}

// Load starts reading src and returns the event stream. The channel receives
// PreviewReady then FullReady, or Failed, and is closed afterwards.
func Load(ctx context.Context, src Source, opt Options, logger zerolog.Logger) <-chan Event {
	out := make(chan Event, 2)
	go func() {
		defer close(out)
		log := logger.With().Str("file", src.Name).Logger()

		if !fileio.IsSupported(src.Name) {
			send(ctx, out, Event{Kind: Failed, Err: errors.Wrap(errors.Wrapf(fileio.ErrUnsupported, "%s", src.Name), "read failed")})
			return
		}

		preview := opt.PreviewRows
		if preview == 0 {
			preview = DefaultPreviewRows
		}
		if preview > 0 {
			ds, err := read(src, fileio.ReadOptions{HeaderRow: opt.HeaderRow, Sheet: opt.Sheet, MaxRows: preview})
			if err != nil {
				log.Warn().Err(err).Msg("preview read failed")
				send(ctx, out, Event{Kind: Failed, Err: errors.Wrap(err, "read failed")})
				return
			}
			if !send(ctx, out, Event{Kind: PreviewReady, Dataset: ds}) {
				return
			}
		}

		ds, err := read(src, fileio.ReadOptions{HeaderRow: opt.HeaderRow, Sheet: opt.Sheet})
		if err != nil {
			log.Warn().Err(err).Msg("full read failed")
			send(ctx, out, Event{Kind: Failed, Err: errors.Wrap(err, "read failed")})
			return
		}
		log.Debug().Int("rows", ds.Len()).Int("cols", len(ds.Columns)).Msg("sheet loaded")
		send(ctx, out, Event{Kind: FullReady, Dataset: ds})
	}()
	return out
}

func read(src Source, opt fileio.ReadOptions) (*dataset.Dataset, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return fileio.ReadAny(rc, src.Name, opt)
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Batch is a half-open row range [Start, End).
type Batch struct {
	Start int
	End   int
}

// Batches splits rows [start, total) into chunks of size rows.
func Batches(total, start, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if start < 0 {
		start = 0
	}
	var out []Batch
	for s := start; s < total; s += size {
		e := s + size
		if e > total {
			e = total
		}
		out = append(out, Batch{Start: s, End: e})
	}
	return out
}
