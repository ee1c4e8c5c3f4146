package server

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/xtding233/seedpool/internal/stattest"
)

const defaultBytes = 32

type bytesResp struct {
	N        int    `json:"n"`
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

type intResp struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

type floatResp struct {
	Value float64 `json:"value"`
}

type reseedResp struct {
	Generator string    `json:"generator"`
	Reseeds   uint64    `json:"reseeds"`
	At        time.Time `json:"at"`
}

type selfTestResp struct {
	Passed  bool              `json:"passed"`
	Alpha   float64           `json:"alpha"`
	Bytes   int               `json:"bytes"`
	Results []stattest.Result `json:"results"`
	Values  stattest.Summary  `json:"values"`
	Failed  []string          `json:"failed,omitempty"`
}

type healthResp struct {
	Status     string    `json:"status"`
	Generator  string    `json:"generator"`
	Algorithm  string    `json:"algorithm"`
	TotalBytes uint64    `json:"total_bytes"`
	Reseeds    uint64    `json:"reseeds"`
	LastReseed time.Time `json:"last_reseed"`
}

type errResp struct {
	Err string `json:"err"`
}

func parseInt(r *http.Request, key string) (int, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps service errors to status codes: bad input is 400, a failed
// reseed is 503, anything else 500.
func (h *httpHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		status = http.StatusBadRequest
	case IsEntropyFailure(err):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", w.Header().Get("X-Request-Id"), "error", err)
	}
	writeJSON(w, status, errResp{Err: err.Error()})
}

type httpHandler struct {
	svc    *Service
	logger hclog.Logger
}

// NewHTTPHandler routes the HTTP API to svc.
func NewHTTPHandler(svc *Service, logger hclog.Logger) http.Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	h := &httpHandler{svc: svc, logger: logger.Named("http")}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/bytes", h.handleBytes)
	mux.HandleFunc("GET /v1/int", h.handleInt)
	mux.HandleFunc("GET /v1/float", h.handleFloat)
	mux.HandleFunc("POST /v1/reseed", h.handleReseed)
	mux.HandleFunc("GET /v1/selftest", h.handleSelfTest)
	mux.HandleFunc("GET /v1/metrics", h.handleMetrics)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return h.withRequestID(mux)
}

func (h *httpHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

// GET /v1/bytes?n=32&encoding=hex|base64
func (h *httpHandler) handleBytes(w http.ResponseWriter, r *http.Request) {
	n, ok, msg := parseInt(r, "n")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if !ok {
		n = defaultBytes
	}
	enc := r.URL.Query().Get("encoding")
	if enc == "" {
		enc = "hex"
	}
	var encode func([]byte) string
	switch enc {
	case "hex":
		encode = hex.EncodeToString
	case "base64":
		encode = base64.StdEncoding.EncodeToString
	default:
		http.Error(w, "encoding must be hex or base64", http.StatusBadRequest)
		return
	}

	out, err := h.svc.Bytes(r.Context(), n)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bytesResp{N: n, Encoding: enc, Data: encode(out)})
}

// GET /v1/int?max=100
func (h *httpHandler) handleInt(w http.ResponseWriter, r *http.Request) {
	limit, ok, msg := parseInt(r, "max")
	if !ok {
		if msg == "" {
			msg = "missing param max"
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	v, err := h.svc.IntN(r.Context(), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intResp{Value: v, Max: limit})
}

func (h *httpHandler) handleFloat(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Float64(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, floatResp{Value: v})
}

func (h *httpHandler) handleReseed(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Reseed(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reseedResp{Generator: st.ID, Reseeds: st.Reseeds, At: st.LastReseed})
}

// GET /v1/selftest?n=65536
func (h *httpHandler) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	n, _, msg := parseInt(r, "n")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	rep, err := h.svc.SelfTest(r.Context(), n)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selfTestResp{
		Passed:  rep.Passed(),
		Alpha:   rep.Alpha,
		Bytes:   rep.Bytes,
		Results: rep.Results,
		Values:  rep.Values,
		Failed:  rep.Failed(),
	})
}

func (h *httpHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.svc.sink == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	summary, err := h.svc.sink.DisplayMetrics(w, r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Stats()
	writeJSON(w, http.StatusOK, healthResp{
		Status:     "ok",
		Generator:  st.ID,
		Algorithm:  string(st.Algorithm),
		TotalBytes: st.TotalBytes,
		Reseeds:    st.Reseeds,
		LastReseed: st.LastReseed,
	})
}
