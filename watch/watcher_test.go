package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-harmony/batch"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAnalyzer) AnalyzeOne(ctx context.Context, path string) batch.FileOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	return batch.FileOutcome{Path: path}
}

func (f *fakeAnalyzer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcher(t *testing.T) {
	Convey("Given a watcher on an empty directory", t, func() {
		dir := t.TempDir()
		fake := &fakeAnalyzer{}
		outcomes := make(chan batch.FileOutcome, 16)
		w := New(fake,
			WithQuietPeriod(50*time.Millisecond),
			WithOutcomeHandler(func(o batch.FileOutcome) { outcomes <- o }),
		)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx, dir) }()
		defer func() {
			cancel()
			<-done
		}()

		// give the watcher time to register the directory
		time.Sleep(100 * time.Millisecond)

		Convey("Repeated writes to a MIDI file are analyzed once", func() {
			path := filepath.Join(dir, "song.mid")
			for i := 0; i < 5; i++ {
				So(os.WriteFile(path, []byte{byte(i)}, 0o644), ShouldBeNil)
			}

			So(waitFor(func() bool { return len(fake.seen()) >= 1 }), ShouldBeTrue)
			time.Sleep(200 * time.Millisecond)
			So(fake.seen(), ShouldResemble, []string{path})

			o := <-outcomes
			So(o.Path, ShouldEqual, path)
		})

		Convey("Files that are not MIDI or audio are ignored", func() {
			So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644), ShouldBeNil)
			time.Sleep(300 * time.Millisecond)
			So(fake.seen(), ShouldBeEmpty)
		})

		Convey("Files in new subdirectories are picked up", func() {
			sub := filepath.Join(dir, "sub")
			So(os.Mkdir(sub, 0o755), ShouldBeNil)
			time.Sleep(100 * time.Millisecond)

			path := filepath.Join(sub, "take.wav")
			So(os.WriteFile(path, []byte("RIFF"), 0o644), ShouldBeNil)

			So(waitFor(func() bool { return len(fake.seen()) >= 1 }), ShouldBeTrue)
			So(fake.seen()[0], ShouldEqual, path)
		})

		Convey("A directory moved in with files already inside is analyzed", func() {
			staging := filepath.Join(t.TempDir(), "album")
			So(os.MkdirAll(filepath.Join(staging, "disc2"), 0o755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(staging, "one.mid"), []byte("x"), 0o644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(staging, "disc2", "two.wav"), []byte("x"), 0o644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(staging, "cover.jpg"), []byte("x"), 0o644), ShouldBeNil)

			target := filepath.Join(dir, "album")
			So(os.Rename(staging, target), ShouldBeNil)

			So(waitFor(func() bool { return len(fake.seen()) >= 2 }), ShouldBeTrue)
			time.Sleep(200 * time.Millisecond)
			So(fake.seen(), ShouldResemble, []string{
				filepath.Join(target, "disc2", "two.wav"),
				filepath.Join(target, "one.mid"),
			})
		})
	})

	Convey("Given a missing directory", t, func() {
		w := New(&fakeAnalyzer{})

		Convey("Run fails immediately", func() {
			err := w.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
			So(err, ShouldNotBeNil)
		})
	})
}
