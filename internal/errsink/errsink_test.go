package errsink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osena/curator/internal/errsink"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCaptureDeduplicates(t *testing.T) {
	ctx := context.Background()

	Convey("Given repeated identical errors within the window", t, func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		sink := errsink.New(
			errsink.WithWindow(time.Hour),
			errsink.WithClock(func() time.Time { return now }),
		)

		fetchErr := errors.New("connection refused")
		for i := 0; i < 4; i++ {
			sink.Capture(ctx, "ingest", "fetch", fetchErr, map[string]string{"source": "techlist"})
			now = now.Add(time.Minute)
		}

		Convey("Then one record accumulates the occurrences", func() {
			records := sink.Records()
			So(len(records), ShouldEqual, 1)
			So(records[0].Occurrences, ShouldEqual, 4)
			So(records[0].Source, ShouldEqual, "ingest")
			So(records[0].Context["source"], ShouldEqual, "techlist")
			So(records[0].LastSeen.Sub(records[0].FirstSeen), ShouldEqual, 3*time.Minute)
		})
	})
}

func TestCaptureDistinctKeys(t *testing.T) {
	ctx := context.Background()

	Convey("Given the same message from different sources and contexts", t, func() {
		sink := errsink.New()
		err := errors.New("timeout")

		sink.Capture(ctx, "ingest", "fetch", err, map[string]string{"source": "a"})
		sink.Capture(ctx, "ingest", "fetch", err, map[string]string{"source": "b"})
		sink.Capture(ctx, "scheduler", "fetch", err, map[string]string{"source": "a"})

		Convey("Then each key gets its own record", func() {
			So(len(sink.Records()), ShouldEqual, 3)
		})
	})
}

func TestCaptureOutsideWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a repeat after the window has elapsed", t, func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		sink := errsink.New(
			errsink.WithWindow(10*time.Minute),
			errsink.WithClock(func() time.Time { return now }),
		)

		err := errors.New("parse failure")
		sink.Capture(ctx, "worker", "parse", err, nil)
		now = now.Add(11 * time.Minute)
		sink.Capture(ctx, "worker", "parse", err, nil)

		Convey("Then a fresh record starts", func() {
			records := sink.Records()
			So(len(records), ShouldEqual, 1)
			So(records[0].Occurrences, ShouldEqual, 1)
			So(records[0].FirstSeen, ShouldEqual, now)
		})
	})
}

func TestCaptureNilError(t *testing.T) {
	Convey("Given a nil error", t, func() {
		sink := errsink.New()
		sink.Capture(context.Background(), "worker", "parse", nil, nil)

		Convey("Then nothing is recorded", func() {
			So(len(sink.Records()), ShouldEqual, 0)
		})
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()

	Convey("Given records of mixed age", t, func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		sink := errsink.New(errsink.WithClock(func() time.Time { return now }))

		sink.Capture(ctx, "ingest", "fetch", errors.New("old"), nil)
		now = now.Add(48 * time.Hour)
		sink.Capture(ctx, "ingest", "fetch", errors.New("fresh"), nil)

		Convey("When pruning records older than a day", func() {
			removed := sink.Prune(24 * time.Hour)

			So(removed, ShouldEqual, 1)
			records := sink.Records()
			So(len(records), ShouldEqual, 1)
			So(records[0].Message, ShouldEqual, "fresh")
		})
	})
}
