package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/farewatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Contamination, convey.ShouldEqual, 0.1)
			convey.So(cfg.AlertThreshold, convey.ShouldEqual, -0.5)
			convey.So(cfg.Trees, convey.ShouldEqual, 100)
			convey.So(cfg.MaxSamples, convey.ShouldEqual, 256)
			convey.So(cfg.Seed, convey.ShouldEqual, 42)
			convey.So(cfg.FitWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.TimestampPolicy, convey.ShouldEqual, config.TimestampPolicyFail)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with out-of-range settings", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
			want   string
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }, "addr must not be empty"},
			{"contamination too small", func(c *config.Config) { c.Contamination = 0.001 }, "contamination"},
			{"contamination too large", func(c *config.Config) { c.Contamination = 0.6 }, "contamination"},
			{"threshold above zero", func(c *config.Config) { c.AlertThreshold = 0.2 }, "alert_threshold"},
			{"threshold below -1", func(c *config.Config) { c.AlertThreshold = -1.5 }, "alert_threshold"},
			{"no trees", func(c *config.Config) { c.Trees = 0 }, "trees"},
			{"tiny sample", func(c *config.Config) { c.MaxSamples = 1 }, "max_samples"},
			{"no workers", func(c *config.Config) { c.FitWorkers = 0 }, "fit_workers"},
			{"unknown policy", func(c *config.Config) { c.TimestampPolicy = "ignore" }, "timestamp_policy"},
			{"no upload budget", func(c *config.Config) { c.MaxUploadBytes = 0 }, "max_upload_bytes"},
			{"negative row cap", func(c *config.Config) { c.MaxRowsInResponse = -1 }, "max_rows_in_response"},
		}

		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
				})
			})
		}

		convey.Convey("When the boundaries are used exactly", func() {
			cfg := config.New()
			cfg.Contamination = 0.5
			cfg.AlertThreshold = -1

			convey.Convey("Then they are accepted", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
