package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/wlddc/internal/audit"
)

// handleListCommands returns command history, newest first.
//
// Query parameters: display, kind, result, limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command history disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		UniqueID: q.Get("display"),
		Kind:     q.Get("kind"),
		Result:   q.Get("result"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "offset must be an integer")
		return
	}

	res, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command history", "error", err)
		writeInternalError(w, "failed to list command history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
