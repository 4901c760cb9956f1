package server

import (
	"bytes"
	"errors"
	"io/ioutil"
	"mime"
	"net/http"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/storage/zapadapter"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// enforcePostJSON is a middleware pre-processing each webhook request
// it checks for POST method and application/json Content-Type header and buffers
// at most maxBytes of body so handlers can verify the raw bytes
func enforcePostJSON(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}

			// check "Content-Type" header
			contentType := r.Header.Get("Content-Type")
			if contentType != "" {
				mt, _, err := mime.ParseMediaType(contentType)
				if err != nil {
					http.Error(w, "Malformed Content-Type header", http.StatusBadRequest)
					return
				}

				if mt != "application/json" {
					http.Error(w, "Content-Type header must be application/json", http.StatusUnsupportedMediaType)
					return
				}
			}

			if r.Body == nil {
				http.Error(w, "No body provided", http.StatusBadRequest)
				return
			}

			body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "Can not read request body", http.StatusBadRequest)
				return
			}

			if len(body) == 0 {
				http.Error(w, "No body provided", http.StatusBadRequest)
				return
			}

			r.Body = ioutil.NopCloser(bytes.NewReader(body))

			next.ServeHTTP(w, r)
		})
	}
}

// requestLog tags each request with an xid request id and logs it once served
func requestLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := xid.New().String()
			start := time.Now()

			ctx := zapadapter.NewContextWithID(r.Context(), id)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Info("http request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("uri", r.URL.RequestURI()),
				zap.String("ip", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
