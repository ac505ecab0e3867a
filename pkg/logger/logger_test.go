package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized with defaults", func() {
			err := Init()

			Convey("Then Get returns a usable logger", func() {
				So(err, ShouldBeNil)
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
				So(func() { Get().Info(context.Background(), "hello", String("k", "v")) }, ShouldNotPanic)
			})
		})

		Convey("When it is initialized with a buffer and JSON output", func() {
			var buf bytes.Buffer
			So(Init(WithOutput(&buf), WithJSON(true)), ShouldBeNil)
			Get().Info(context.Background(), "batch scored", Int("rows", 3), Bool("ok", true))

			Convey("Then the line is JSON with the fields and a source location", func() {
				So(buf.String(), ShouldContainSubstring, `"msg":"batch scored"`)
				So(buf.String(), ShouldContainSubstring, `"rows":3`)
				So(buf.String(), ShouldContainSubstring, `"source":"`)
				So(buf.String(), ShouldContainSubstring, "logger_test.go")
			})
		})
	})
}

func TestLoggerLevels(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When the level is warn", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			Convey("Then info lines are filtered", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})

		Convey("When the level string is unknown", func() {
			err := SetLevelString("verbose")

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log level")
			})
		})

		Reset(func() { SetLevel(slog.LevelInfo) })
	})
}

func TestLoggerNamedAndWith(t *testing.T) {
	Convey("Given a standalone logger", t, func() {
		var buf bytes.Buffer
		l := New(&buf, slog.LevelDebug)

		Convey("When logging through a named child with fixed fields", func() {
			l.Named("scoring").With(String("batch_id", "b-1")).Error(context.Background(), "fit failed", Error(errors.New("boom")))

			Convey("Then the group and fields are present", func() {
				So(buf.String(), ShouldContainSubstring, "batch_id=b-1")
				So(buf.String(), ShouldContainSubstring, "scoring.error=boom")
			})
		})

		Convey("When using the nop logger", func() {
			Convey("Then nothing panics", func() {
				So(func() { Nop().Error(context.Background(), "dropped") }, ShouldNotPanic)
			})
		})
	})
}
