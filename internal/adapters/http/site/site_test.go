package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a site handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		Convey("When registering the site handler", func() {
			Register(ctx, mux)

			Convey("Then it should serve the landing page at /", func() {
				req := httptest.NewRequest("GET", "/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "/dashboard")
			})

			Convey("And it should not handle other paths", func() {
				req := httptest.NewRequest("GET", "/some-asset", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("And it should serve a reproducible sample batch", func() {
				get := func() string {
					req := httptest.NewRequest("GET", "/sample.csv?rows=30&seed=4", nil)
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, req)
					So(w.Code, ShouldEqual, http.StatusOK)
					So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
					return w.Body.String()
				}
				body := get()
				So(strings.Count(strings.TrimSpace(body), "\n"), ShouldEqual, 30)
				So(body, ShouldStartWith, "ride_id,timestamp,fare,distance,duration,ride_type")
				So(get(), ShouldEqual, body)
			})

			Convey("And it should reject bad sample parameters", func() {
				for _, q := range []string{"rows=0", "rows=abc", "seed=x"} {
					req := httptest.NewRequest("GET", "/sample.csv?"+q, nil)
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, req)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
			})
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
