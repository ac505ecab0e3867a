package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/farewatch/internal/config"
	"github.com/okian/farewatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainWiring(t *testing.T) {
	convey.Convey("Given configuration loaded from the environment", t, func() {
		_ = os.Setenv("FAREWATCH_ADDR", ":8181")
		_ = os.Setenv("FAREWATCH_TREES", "20")
		_ = os.Setenv("FAREWATCH_TIMESTAMP_POLICY", "drop")
		defer func() {
			_ = os.Unsetenv("FAREWATCH_ADDR")
			_ = os.Unsetenv("FAREWATCH_TREES")
			_ = os.Unsetenv("FAREWATCH_TIMESTAMP_POLICY")
		}()

		ctx := context.Background()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
		convey.So(cfg.Trees, convey.ShouldEqual, 20)

		svc := newService(cfg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then the service reflects the configuration", func() {
			stats := svc.GetStats()
			convey.So(stats["trees"], convey.ShouldEqual, 20)
			convey.So(stats["timestampPolicy"], convey.ShouldEqual, "drop")
			convey.So(svc.Defaults().Contamination, convey.ShouldEqual, cfg.Contamination)
		})

		convey.Convey("When the mux is built", func() {
			srv := httptest.NewServer(newMux(ctx, cfg, svc, logger.Nop()))
			defer srv.Close()

			convey.Convey("Then every surface is routed", func() {
				for _, path := range []string{"/", "/healthz", "/dashboard", "/stats", "/api-docs", "/openapi.yaml", "/sample.csv"} {
					resp, err := http.Get(srv.URL + path)
					convey.So(err, convey.ShouldBeNil)
					_ = resp.Body.Close()
					convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then a batch can be analyzed end to end", func() {
				body := "timestamp,fare,distance,duration\n" +
					"2024-01-01 08:00:00,10,5,10\n" +
					"2024-01-01 08:05:00,100,1,2\n"
				resp, err := http.Post(srv.URL+"/analyze?contamination=0.5", "text/csv", strings.NewReader(body))
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestMainConfigErrors(t *testing.T) {
	convey.Convey("Given an invalid environment", t, func() {
		_ = os.Setenv("FAREWATCH_CONTAMINATION", "0.9")
		defer func() { _ = os.Unsetenv("FAREWATCH_CONTAMINATION") }()

		convey.Convey("Then configuration loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given a short-lived context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the updater returns once the context ends", func() {
			convey.So(func() {
				startSystemMetricsUpdater(ctx, 10*time.Millisecond)
			}, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})
	})
}
