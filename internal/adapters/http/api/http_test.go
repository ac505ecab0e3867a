package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/farewatch/internal/adapters/http/api"
	"github.com/okian/farewatch/internal/adapters/table"
	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/internal/ridegen"
	"github.com/okian/farewatch/pkg/logger"
)

const twoRides = "fare,distance,duration\n10,5,10\n500,1,1\n"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeBody struct {
	BatchID string `json:"batch_id"`
	Params  struct {
		Contamination  float64 `json:"contamination"`
		AlertThreshold float64 `json:"alert_threshold"`
	} `json:"params"`
	Summary struct {
		TotalRides int `json:"total_rides"`
		Anomalies  int `json:"anomalies"`
		HighRisk   int `json:"high_risk"`
	} `json:"summary"`
	Alerts        []map[string]interface{} `json:"alerts"`
	Columns       []string                 `json:"columns"`
	Rows          []map[string]interface{} `json:"rows"`
	RowsTruncated bool                     `json:"rows_truncated"`
}

func newMux(opts ...api.Option) *http.ServeMux {
	svc := service.New(service.WithLogger(logger.Nop()), service.WithTrees(50))
	So(svc.Start(context.Background()), ShouldBeNil)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func multipartUpload(path, csv string, fields map[string]string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		So(mw.WriteField(k, v), ShouldBeNil)
	}
	fw, err := mw.CreateFormFile("file", "rides.csv")
	So(err, ShouldBeNil)
	_, err = fw.Write([]byte(csv))
	So(err, ShouldBeNil)
	So(mw.Close(), ShouldBeNil)

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_Analyze(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux()

		Convey("When posting the two-ride CSV as a raw body", func() {
			req := httptest.NewRequest(http.MethodPost, "/analyze?contamination=0.5&alert_threshold=-0.4", strings.NewReader(twoRides))
			req.Header.Set("Content-Type", "text/csv")
			w := serve(mux, req)

			Convey("Then the overpriced ride is the only anomaly", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body analyzeBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.BatchID, ShouldNotBeEmpty)
				So(body.Params.Contamination, ShouldEqual, 0.5)
				So(body.Params.AlertThreshold, ShouldEqual, -0.4)
				So(body.Summary.TotalRides, ShouldEqual, 2)
				So(body.Summary.Anomalies, ShouldEqual, 1)
				So(body.Rows, ShouldHaveLength, 2)
				So(body.Rows[0]["is_anomaly"], ShouldEqual, false)
				So(body.Rows[1]["is_anomaly"], ShouldEqual, true)
				So(body.Columns, ShouldContain, "anomaly_score")
			})
		})

		Convey("When curl-style form encoding is used for a raw body", func() {
			req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(twoRides))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := serve(mux, req)

			Convey("Then the body is still read as CSV with default params", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body analyzeBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Params.Contamination, ShouldEqual, 0.1)
			})
		})

		Convey("When uploading through a multipart form", func() {
			w := serve(mux, multipartUpload("/analyze", twoRides, map[string]string{"contamination": "0.5"}))

			Convey("Then form fields set the parameters", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body analyzeBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Params.Contamination, ShouldEqual, 0.5)
				So(body.Summary.Anomalies, ShouldEqual, 1)
			})
		})

		Convey("When the duration column is missing", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("fare,distance\n1,2\n")))

			Convey("Then a schema error is reported", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var body errorBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Code, ShouldEqual, "schema_error")
				So(body.Message, ShouldContainSubstring, "duration")
			})
		})

		Convey("When every row is dropped", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("fare,distance,duration\n-1,2,3\n")))
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(w.Body.String(), ShouldContainSubstring, "empty_result")
		})

		Convey("When a timestamp cannot be parsed", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("timestamp,fare,distance,duration\nnope,1,2,3\n")))
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(w.Body.String(), ShouldContainSubstring, "parse_error")
		})

		Convey("When parameters are invalid", func() {
			for _, q := range []string{"contamination=0.9", "contamination=abc", "alert_threshold=0.5"} {
				w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze?"+q, strings.NewReader(twoRides)))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			}
		})

		Convey("When the multipart form has no file", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			So(mw.WriteField("contamination", "0.2"), ShouldBeNil)
			So(mw.Close(), ShouldBeNil)
			req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())

			So(serve(mux, req).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is not POST", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/analyze", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)

			var body errorBody
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Code, ShouldEqual, "method_not_allowed")
			So(body.Message, ShouldEqual, "api.analyze: method not allowed")
		})
	})

	Convey("Given a server with tight limits", t, func() {
		mux := newMux(api.WithMaxUploadBytes(64), api.WithMaxRows(10))

		Convey("When the upload exceeds the size limit", func() {
			big := "fare,distance,duration\n" + strings.Repeat("10,5,10\n", 20)
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(big)))
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})
	})

	Convey("Given a server that caps echoed rows", t, func() {
		mux := newMux(api.WithMaxRows(10))
		var csv strings.Builder
		So(ridegen.WriteCSV(&csv, ridegen.New().Generate(50)), ShouldBeNil)

		w := serve(mux, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(csv.String())))
		So(w.Code, ShouldEqual, http.StatusOK)

		var body analyzeBody
		So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
		So(body.Rows, ShouldHaveLength, 10)
		So(body.RowsTruncated, ShouldBeTrue)
		So(body.Summary.TotalRides, ShouldEqual, 50)
	})
}

func TestServer_Export(t *testing.T) {
	Convey("Given a registered API server and a generated batch", t, func() {
		mux := newMux()
		var csv strings.Builder
		So(ridegen.WriteCSV(&csv, ridegen.New(ridegen.WithSeed(8)).Generate(200)), ShouldBeNil)

		Convey("When exporting all anomalies", func() {
			w := serve(mux, multipartUpload("/export/anomalies", csv.String(), nil))

			Convey("Then a CSV attachment of anomalous rows is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "all_anomalies.csv")

				df, err := table.ReadCSV(w.Body)
				So(err, ShouldBeNil)
				So(df.Nrow(), ShouldAlmostEqual, 20, 3)
				for _, v := range df.Col("is_anomaly").Records() {
					So(v, ShouldEqual, "true")
				}
			})
		})

		Convey("When exporting high-risk anomalies", func() {
			w := serve(mux, multipartUpload("/export/high-risk", csv.String(), map[string]string{"alert_threshold": "-0.55"}))

			Convey("Then every row is anomalous and below the threshold", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "high_risk_anomalies.csv")

				df, err := table.ReadCSV(w.Body)
				So(err, ShouldBeNil)
				for _, v := range df.Col("is_anomaly").Records() {
					So(v, ShouldEqual, "true")
				}
				for _, s := range df.Col("anomaly_score").Float() {
					So(s, ShouldBeLessThan, -0.55)
				}
			})
		})

		Convey("When the export input is invalid", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/export/high-risk", strings.NewReader("fare\n1\n")))
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}

func TestServer_Pages(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux()

		Convey("Then /healthz serves Prometheus metrics", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "farewatch_")
		})

		Convey("Then /stats reports pipeline configuration", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)

			var stats map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
			So(stats["trees"], ShouldEqual, 50.0)
		})

		Convey("Then /dashboard serves the upload page", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/dashboard", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `id="contamination"`)
			So(w.Body.String(), ShouldContainSubstring, `id="threshold"`)
			So(w.Body.String(), ShouldContainSubstring, "/export/high-risk")
		})
	})
}
