package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/benefits-notice/internal/notice"
)

func (s *Server) viewNotice(w http.ResponseWriter, r *http.Request) {
	s.noticeAction(w, r, s.deps.Notices.View)
}

func (s *Server) optOut(w http.ResponseWriter, r *http.Request) {
	s.noticeAction(w, r, s.deps.Notices.OptOut)
}

func (s *Server) optIn(w http.ResponseWriter, r *http.Request) {
	s.noticeAction(w, r, s.deps.Notices.OptIn)
}

func (s *Server) affirmInsurance(w http.ResponseWriter, r *http.Request) {
	var req notice.Affirmation
	if err := s.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.noticeAction(w, r, func(ctx context.Context, token string) (*notice.Page, error) {
		return s.deps.Notices.AffirmInsurance(ctx, token, req)
	})
}

func (s *Server) noticeAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*notice.Page, error)) {
	page, err := fn(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, page)
}
