// SPDX-License-Identifier: Apache-2.0

package nativehost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/adiadia/syrphid-receiver/internal/classifier"
	"github.com/adiadia/syrphid-receiver/internal/framing"
	"github.com/adiadia/syrphid-receiver/internal/persistence/sqlite"
	"github.com/adiadia/syrphid-receiver/internal/repository"
	"github.com/adiadia/syrphid-receiver/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopSession struct{}

func (nopSession) Begin(context.Context) (classifier.UnitOfWork, error) {
	return nil, errors.New("not used")
}

func (nopSession) Close() error { return nil }

type fakeStore struct {
	err error
}

func (s fakeStore) Open(context.Context) (classifier.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nopSession{}, nil
}

type countingDispatcher struct {
	n int64
}

func (d *countingDispatcher) Dispatch(context.Context, classifier.Session, []byte, time.Time) (classifier.Result, error) {
	d.n++
	return classifier.Result{EventID: d.n}, nil
}

type pipes struct {
	in     *io.PipeWriter
	out    *io.PipeReader
	cancel context.CancelFunc
	done   chan error
}

func startHost(t *testing.T, h *Host) *pipes {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	p := &pipes{in: inW, out: outR, cancel: cancel, done: make(chan error, 1)}
	go func() {
		err := h.Serve(ctx, inR, outW)
		outW.Close()
		p.done <- err
	}()
	t.Cleanup(func() {
		cancel()
		inW.Close()
	})
	return p
}

// stop cancels the host and waits for Serve to return.
func (p *pipes) stop(t *testing.T) error {
	t.Helper()
	p.cancel()
	p.in.Close()
	select {
	case err := <-p.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("host did not stop")
		return nil
	}
}

// feed writes each payload as one frame. It runs on its own goroutine, so
// write errors surface as missing status frames.
func feed(w io.Writer, payloads ...string) {
	for _, payload := range payloads {
		if _, err := w.Write(framing.Encode([]byte(payload))); err != nil {
			return
		}
	}
}

func readStatus(t *testing.T, r io.Reader) Status {
	t.Helper()
	payload, err := framing.Decode(r)
	if err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	var st Status
	if err := json.Unmarshal(payload, &st); err != nil {
		t.Fatalf("decode status %s: %v", payload, err)
	}
	return st
}

func TestThreeFramesWithMalformedSecondSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.EnsureSchema(ctx, db, discardLogger()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	validator, err := schema.New()
	if err != nil {
		t.Fatalf("compile schemas: %v", err)
	}
	dispatcher, err := classifier.New(classifier.Deps{Validator: validator, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	h := New(Deps{
		Store:        classifier.NewRepositoryStore(repository.NewStore(db, repository.DialectSQLite, discardLogger())),
		Dispatcher:   dispatcher,
		Logger:       discardLogger(),
		IdleInterval: 5 * time.Millisecond,
	})
	p := startHost(t, h)

	envelope := `"sessionId":"s-1","userAgent":"ua","extensionVersion":"1.0","operatingSystem":"win","screenResolution":"1024x768"`
	go feed(p.in,
		`{"type":"navigation","sequenceNumber":1,`+envelope+`}`,
		`{"type":"navigation","sequenceNumber":`,
		`{"type":"storage","sequenceNumber":3,`+envelope+`}`,
	)

	first := readStatus(t, p.out)
	if first.Status != StatusSuccess || first.Message != "event stored" || first.ID != 1 {
		t.Fatalf("unexpected first status %+v", first)
	}
	second := readStatus(t, p.out)
	if second.Status != StatusError || second.ID != 0 || second.Message == "" {
		t.Fatalf("unexpected second status %+v", second)
	}
	third := readStatus(t, p.out)
	if third.Status != StatusSuccess || third.ID != 2 {
		t.Fatalf("unexpected third status %+v", third)
	}

	if err := p.stop(t); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestFramingErrorWritesNoFrame(t *testing.T) {
	h := New(Deps{
		Store:        fakeStore{},
		Dispatcher:   &countingDispatcher{},
		Logger:       discardLogger(),
		IdleInterval: 5 * time.Millisecond,
	})
	p := startHost(t, h)

	go func() {
		feed(p.in, `{"a":1}`)
		// A header cut short by the end of input.
		_, _ = p.in.Write([]byte{0x05, 0x00})
		p.in.Close()
	}()

	if st := readStatus(t, p.out); st.Status != StatusSuccess || st.ID != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	// The host keeps polling the closed input until cancelled.
	time.Sleep(30 * time.Millisecond)
	if err := p.stop(t); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if _, err := framing.Decode(p.out); !errors.Is(err, framing.ErrEndOfStream) {
		t.Fatalf("expected no further frames, got %v", err)
	}
}

func TestServeStoreFailure(t *testing.T) {
	h := New(Deps{Store: fakeStore{err: errors.New("locked")}, Dispatcher: &countingDispatcher{}, Logger: discardLogger()})

	err := h.Serve(context.Background(), eofReader{}, io.Discard)
	if err == nil {
		t.Fatalf("expected session error")
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("bad file descriptor") }

func TestServeReturnsOnReadFailure(t *testing.T) {
	h := New(Deps{Store: fakeStore{}, Dispatcher: &countingDispatcher{}, Logger: discardLogger()})

	if err := h.Serve(context.Background(), brokenReader{}, io.Discard); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestServeIdlesUntilCancelled(t *testing.T) {
	h := New(Deps{Store: fakeStore{}, Dispatcher: &countingDispatcher{}, Logger: discardLogger(), IdleInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, eofReader{}, io.Discard) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("host did not stop while idling")
	}
}

func TestServeStopsWhileInputBlocks(t *testing.T) {
	h := New(Deps{Store: fakeStore{}, Dispatcher: &countingDispatcher{}, Logger: discardLogger()})

	// Open but never written, like an idle browser port.
	inR, inW := io.Pipe()
	t.Cleanup(func() { inW.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, inR, io.Discard) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("host did not stop while the input was blocked")
	}
}
