package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/report"
	"caisse/internal/services"
)

// xlsxSheet is the worksheet name of the downloaded workbook.
const xlsxSheet = "Rapprochement"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Backend not ready", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// loadView loads p, retrying once when a concurrent load made it stale.
func (s *Server) loadView(ctx context.Context, p reconcile.Period) (services.View, error) {
	v, err := s.recon.Load(ctx, p)
	if errors.Is(err, services.ErrStaleView) {
		v, err = s.recon.Load(ctx, p)
	}
	return v, err
}

func (s *Server) period(w http.ResponseWriter, r *http.Request) (reconcile.Period, bool) {
	p, err := ParsePeriod(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError("Période invalide").Write(w)
		return reconcile.Period{}, false
	}
	return p, true
}

func (s *Server) sortOrder(w http.ResponseWriter, r *http.Request) (reconcile.SortOrder, bool) {
	o, err := ParseSort(r.URL.Query())
	if err != nil {
		BadRequestError("Tri invalide").Write(w)
		return reconcile.SortNone, false
	}
	return o, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	FromError(err).Write(w)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	p, ok := s.period(w, r)
	if !ok {
		return
	}
	order, ok := s.sortOrder(w, r)
	if !ok {
		return
	}
	v, err := s.loadView(r.Context(), p)
	if err != nil {
		s.fail(w, r, log.OpLoad, err)
		return
	}
	v.Rows = order.Sorted(v.Rows)
	NewResponse().JSON(newViewResponse(v)).Write(w)
}

func (s *Server) handleSubmitCashEntry(w http.ResponseWriter, r *http.Request) {
	e, err := DecodeCashEntry(w, r)
	if err != nil {
		BadRequestError(services.MsgInvalidForm).Write(w)
		return
	}
	saved, err := s.cash.Submit(r.Context(), e)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	// The entry is saved; a failed reload only drops the view from the reply.
	resp := submitResponse{Entry: saved}
	if v, err := s.loadView(r.Context(), s.periodAfterWrite(r, saved.Date)); err == nil {
		resp.View = newViewResponse(v)
	} else {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Reload after save failed", log.FieldError, err.Error())
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleDeleteCashEntry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, date := sanitizeInput(q.Get("id")), sanitizeInput(q.Get("date"))
	if err := s.cash.Delete(r.Context(), id, date); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}

	var (
		v   services.View
		err error
	)
	if _, ok := core.ParseDay(date); ok || hasPeriod(q) {
		v, err = s.loadView(r.Context(), s.periodAfterWrite(r, date))
	} else {
		v, err = s.recon.Refresh(r.Context())
	}
	if err != nil {
		if !errors.Is(err, services.ErrNoView) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Reload after delete failed", log.FieldError, err.Error())
		}
		NewResponse().Status(http.StatusNoContent).Write(w)
		return
	}
	NewResponse().JSON(newViewResponse(v)).Write(w)
}

// periodAfterWrite is the period reloaded after a write: the one named in the
// query, else the month of the written day, else the current month.
func (s *Server) periodAfterWrite(r *http.Request, date string) reconcile.Period {
	q := r.URL.Query()
	if hasPeriod(q) {
		if p, err := ParsePeriod(q, s.now()); err == nil {
			return p
		}
	}
	if d, ok := core.ParseDay(date); ok {
		return reconcile.Month(d.Year(), int(d.Month()))
	}
	now := s.now()
	return reconcile.Month(now.Year(), int(now.Month()))
}

func (s *Server) exportTable(w http.ResponseWriter, r *http.Request) (report.Table, reconcile.Period, bool) {
	p, ok := s.period(w, r)
	if !ok {
		return report.Table{}, p, false
	}
	order, ok := s.sortOrder(w, r)
	if !ok {
		return report.Table{}, p, false
	}
	v, err := s.loadView(r.Context(), p)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return report.Table{}, p, false
	}
	return report.NewTable(order.Sorted(v.Rows), v.Totals), p, true
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.exportTable(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, t); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", "rapprochement-"+p.Key()+".csv", buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	t, p, ok := s.exportTable(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, xlsxSheet, t); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"rapprochement-"+p.Key()+".xlsx", buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleOffsetAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := s.period(w, r)
	if !ok {
		return
	}
	candidates, err := s.recon.AuditDayOffset(r.Context(), p)
	if err != nil {
		s.fail(w, r, log.OpValidate, err)
		return
	}
	out := make([]offsetCandidateResponse, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, offsetCandidateResponse{Entry: c.Entry, EntryKey: c.EntryKey, RevenueKey: c.RevenueKey})
	}
	NewResponse().JSON(out).Write(w)
}
