package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumi-core/internal/audit"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// handleListJournal returns a page of journal entries, most recent first.
//
// Query parameters: operation, caller, rejected (true/false), from_height,
// to_height, limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not available")
		return
	}

	filter, err := parseJournalFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetJournalEntry returns one journal entry by sequence number.
func (s *Server) handleGetJournalEntry(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not available")
		return
	}

	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq <= 0 {
		writeBadRequest(w, "seq must be a positive integer")
		return
	}

	entry, err := s.journal.Get(r.Context(), seq)
	if errors.Is(err, audit.ErrEntryNotFound) {
		writeNotFound(w, "journal entry not found")
		return
	}
	if err != nil {
		s.logger.Error("reading journal entry failed", "seq", seq, "error", err)
		writeInternalError(w, "failed to read journal entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func parseJournalFilter(q url.Values) (audit.Filter, error) {
	filter := audit.Filter{
		Operation: q.Get("operation"),
		Caller:    ledger.Identity(q.Get("caller")),
	}

	if v := q.Get("rejected"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return audit.Filter{}, errors.New("rejected must be true or false")
		}
		filter.Rejected = &b
	}

	heights := []struct {
		name string
		dst  *ledger.Height
	}{
		{"from_height", &filter.FromHeight},
		{"to_height", &filter.ToHeight},
	}
	for _, h := range heights {
		v := q.Get(h.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return audit.Filter{}, errors.New(h.name + " must be an unsigned integer")
		}
		*h.dst = ledger.Height(n)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return audit.Filter{}, errors.New(p.name + " must be a non-negative integer")
		}
		*p.dst = n
	}
	return filter, nil
}
