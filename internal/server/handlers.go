package server

import (
	"encoding/json"
	"io"
	"net/http"

	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ingestResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Samples int    `json:"samples"`
}

func (s *Server) handlePostData(w http.ResponseWriter, r *http.Request) {
	errFactory := errors.New()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, errFactory.WithData(ErrPayloadTooBig, tooBig.Limit))
			return
		}
		s.writeError(w, errFactory.Wrap(errors.ErrInvalidInput, err))
		return
	}

	sample, err := s.ingest.Append(r.Context(), body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{Status: "ok", Timestamp: sample.IngestedAtMs()})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	window := s.query.ParseWindow(r.URL.Query().Get("window"))
	s.writeJSON(w, http.StatusOK, s.query.Window(r.Context(), window))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.query.All(r.Context()))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sample, err := s.query.Latest(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, alarmBody(s.query.Alarm(r.Context())))
}

// alarmBody flattens a Result: the state, each checked field's value and
// threshold, the tripped fields, and the evaluated sample's timestamp.
func alarmBody(res alarm.Result) map[string]any {
	body := map[string]any{
		"state":     res.State,
		"readings":  res.Readings,
		"timestamp": res.Timestamp,
	}

	thresholds := make(map[string]float64, len(res.Readings))
	for _, rd := range res.Readings {
		if rd.Value != nil {
			body[rd.Field] = *rd.Value
		} else {
			body[rd.Field] = nil
		}
		thresholds[rd.Field] = rd.Threshold
	}
	body["thresholds"] = thresholds

	exceeded := res.Exceeded()
	if exceeded == nil {
		exceeded = []string{}
	}
	body["exceeded"] = exceeded

	return body
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	window := s.query.ParseWindow(r.URL.Query().Get("window"))
	s.writeJSON(w, http.StatusOK, s.query.Summary(r.Context(), window))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.dashboard.render(w); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render dashboard")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Samples: s.query.Len()})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
		msg = errors.GetErrorMessage(errors.ErrInternal)
	} else if code == errors.ErrNotFound {
		msg = errors.GetErrorMessage(errors.ErrNotFound)
	}

	s.writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case ErrPayloadTooBig:
		return http.StatusRequestEntityTooLarge
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v before touching the response, so an unencodable value
// turns into a coded 500 instead of a 200 with an empty body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{
			Error: errors.GetErrorMessage(errors.ErrInternal),
			Code:  string(errors.ErrInternal),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
