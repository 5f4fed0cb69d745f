package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/credits"
	"github.com/sells-group/leadmap/internal/export"
	"github.com/sells-group/leadmap/internal/geo"
	"github.com/sells-group/leadmap/internal/model"
	"github.com/sells-group/leadmap/internal/search"
)

const maxBodyBytes = 1 << 20

// server holds the HTTP handlers.
type server struct {
	env            *appEnv
	defaultAccount string
}

type searchRequest struct {
	Account string       `json:"account"`
	Query   string       `json:"query"`
	Bounds  model.Bounds `json:"bounds"`
	Filter  string       `json:"filter,omitempty"`
}

type searchResponse struct {
	SessionID string         `json:"session_id"`
	Result    *search.Result `json:"result"`
}

type accountRequest struct {
	Account string `json:"account"`
}

type classifyRequest struct {
	URLs []string `json:"urls"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.env.Searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if _, err := geo.NewArea(req.Bounds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid bounds: "+err.Error())
		return
	}
	if req.Filter != "" {
		if _, err := search.ParseLeadFilter(req.Filter); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	account := s.account(req.Account)
	sess := s.env.Sessions.Create(account, req.Query)
	res, err := s.env.Searcher.Run(r.Context(), sess.Store, search.Request{
		Account: account,
		Query:   req.Query,
		Bounds:  req.Bounds,
		Filter:  search.LeadFilter(req.Filter),
	})
	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		s.env.Sessions.Delete(sess.ID)
		writeError(w, http.StatusPaymentRequired, err.Error())
		return
	case err != nil && res != nil:
		s.env.Sessions.Delete(sess.ID)
		zap.L().Warn("search failed", zap.String("session", sess.ID), zap.Error(err))
		msg := "search failed"
		if res.Refunded {
			msg += ", your credit was refunded"
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  msg,
			"result": res,
		})
		return
	case err != nil:
		s.env.Sessions.Delete(sess.ID)
		s.internalError(w, "search", err)
		return
	}

	s.env.Sessions.Finish(sess.ID)
	writeJSON(w, http.StatusOK, searchResponse{SessionID: sess.ID, Result: res})
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}
	writeJSON(w, http.StatusOK, classifyURLs(s.env.Classifier, req.URLs))
}

// handleExport streams a session's leads as a download. The file is
// rendered into memory first so a refused export sends no partial body.
func (s *server) handleExport(format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}

		var buf bytes.Buffer
		err := s.env.Exporter.Export(r.Context(), sess.Store, &buf, format)
		if errors.Is(err, export.ErrNothingToExport) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			s.internalError(w, "export", err)
			return
		}

		w.Header().Set("Content-Type", export.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(format)))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func (s *server) handleSink(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		if sess.Store.Len() == 0 {
			writeError(w, http.StatusConflict, export.ErrNothingToExport.Error())
			return
		}

		sink, err := s.env.Sink(name)
		if err != nil {
			zap.L().Warn("sink unavailable", zap.String("sink", name), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, name+" is not configured")
			return
		}

		n, err := s.env.Exporter.Deliver(r.Context(), sess.Store, sink)
		if errors.Is(err, export.ErrNothingToExport) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			zap.L().Warn("sink delivery failed", zap.String("sink", name), zap.Int("delivered", n), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     "delivery to " + name + " failed",
				"delivered": n,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sink": name, "delivered": n})
	}
}

func (s *server) handleCredits(w http.ResponseWriter, r *http.Request) {
	account := s.account(r.URL.Query().Get("account"))
	bal, err := s.env.Gate.Balance(r.Context(), account)
	if err != nil {
		s.internalError(w, "credits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": bal})
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.env.Gate.StartCheckout(r.Context(), s.account(req.Account))
	if errors.Is(err, credits.ErrCheckoutUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID, "url": sess.URL})
}

// handleCheckoutSuccess is the checkout return URL. The account is taken
// from the paid session unless the query names one.
func (s *server) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	f, err := s.env.Gate.Fulfill(r.Context(), r.URL.Query().Get("account"), id)
	switch {
	case errors.Is(err, credits.ErrCheckoutUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, credits.ErrPaymentIncomplete):
		writeError(w, http.StatusPaymentRequired, err.Error())
		return
	case err != nil:
		s.internalError(w, "fulfill checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// session resolves the {id} route parameter, writing 404 when unknown.
func (s *server) session(w http.ResponseWriter, r *http.Request) (*search.Session, bool) {
	sess, err := s.env.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *server) account(v string) string {
	if v != "" {
		return v
	}
	return s.defaultAccount
}

func (s *server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
