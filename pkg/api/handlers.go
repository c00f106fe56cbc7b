package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"campuspay/pkg/account"
	"campuspay/pkg/gateway"
	"campuspay/pkg/insights"
	"campuspay/pkg/ledger"
	"campuspay/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	Token   string          `json:"token"`
	Account account.Account `json:"account"`
	Mode    string          `json:"mode"`
}

type accountResponse struct {
	Account  account.Account `json:"account"`
	Mode     string          `json:"mode"`
	Advisory string          `json:"advisory,omitempty"`
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body: %v", account.ErrValidation, err)
}

func advisory(mode gateway.Mode) string {
	if mode == gateway.ModeLocal {
		return payment.ErrPersistenceUnavailable.Error()
	}
	return ""
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	session, err := s.deps.Directory.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.openSession(w, http.StatusCreated, session)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	session, err := s.deps.Directory.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.openSession(w, http.StatusOK, session)
}

func (s *Server) openSession(w http.ResponseWriter, status int, session *account.Session) {
	machine, err := s.deps.Machines(session)
	if err != nil {
		s.logger.Error("failed to create payment machine", zap.String("account_id", session.ID()), zap.Error(err))
		writeErr(w, err)
		return
	}
	cs := s.sessions.add(session, machine)
	writeJSON(w, status, sessionResponse{
		Token:   cs.token,
		Account: session.Snapshot(),
		Mode:    session.Mode().String(),
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	s.sessions.remove(cs.token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	acct, err := cs.account.Refresh(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	mode := cs.account.Mode()
	writeJSON(w, http.StatusOK, accountResponse{Account: acct, Mode: mode.String(), Advisory: advisory(mode)})
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	acct, err := cs.account.TopUp(ctx, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	mode := cs.account.Mode()
	writeJSON(w, http.StatusOK, accountResponse{Account: acct, Mode: mode.String(), Advisory: advisory(mode)})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	entries, mode, err := s.deps.Ledger.Fetch(ctx, cs.account.Mode(), cs.account.ID())
	cs.account.Observe(mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	if limit > 0 {
		entries = insights.Recent(entries, limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"mode":         cs.account.Mode().String(),
	})
}

// handleInsights loads the profile and the ledger concurrently.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	var (
		acct    account.Account
		entries []ledger.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acct, err = cs.account.Refresh(gctx)
		return err
	})
	g.Go(func() error {
		var (
			mode gateway.Mode
			err  error
		)
		entries, mode, err = s.deps.Ledger.Fetch(gctx, cs.account.Mode(), cs.account.ID())
		cs.account.Observe(mode)
		return err
	})
	if err := g.Wait(); err != nil {
		writeErr(w, err)
		return
	}

	mode := cs.account.Mode()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":  acct.Balance,
		"summary":  insights.Summarize(entries, time.Now(), s.config.RecentTransactions),
		"mode":     mode.String(),
		"advisory": advisory(mode),
	})
}

type scanRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Merchant string          `json:"merchant"`
	Location string          `json:"location"`
	Category string          `json:"category"`
}

func (req scanRequest) options() (payment.Options, error) {
	opts := payment.Options{
		Amount:   req.Amount,
		Merchant: req.Merchant,
		Location: req.Location,
	}
	if req.Category != "" {
		c, err := ledger.ParseCategory(req.Category)
		if err != nil {
			return payment.Options{}, fmt.Errorf("%w: %v", payment.ErrInvalidOptions, err)
		}
		opts.Category = c
	}
	return opts, nil
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	writeJSON(w, http.StatusOK, cs.machine.Snapshot())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := cs.machine.StartScan(opts); err != nil {
		writePaymentErr(w, err, cs.machine.Snapshot())
		return
	}
	writeJSON(w, http.StatusAccepted, cs.machine.Snapshot())
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	snap, err := cs.machine.Confirm(r.Context(), req.Credential)
	if err != nil {
		writePaymentErr(w, err, cs.machine.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	if err := cs.machine.Cancel(); err != nil {
		writePaymentErr(w, err, cs.machine.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, cs.machine.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	if err := cs.machine.Reset(); err != nil {
		writePaymentErr(w, err, cs.machine.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, cs.machine.Snapshot())
}

// writePaymentErr reports err alongside the session it left behind.
func writePaymentErr(w http.ResponseWriter, err error, snap payment.Snapshot) {
	writeJSON(w, statusFor(err), map[string]interface{}{
		"error":   err.Error(),
		"payment": snap,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	messages, mode, err := s.deps.Chat.History(ctx, cs.account.Mode(), cs.account.ID())
	cs.account.Observe(mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"mode":     cs.account.Mode().String(),
	})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	messages, mode, err := s.deps.Chat.Send(ctx, cs.account.Mode(), cs.account.ID(), cs.account.Snapshot().Name, req.Text)
	cs.account.Observe(mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"messages": messages,
		"mode":     cs.account.Mode().String(),
	})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	mode, err := s.deps.Chat.Clear(ctx, cs.account.Mode(), cs.account.ID())
	cs.account.Observe(mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents waits for the next settlement on the session's account. It
// answers 200 with the event, or 204 when nothing settled within the wait.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, cs *clientSession) {
	wait := s.config.EventWait
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}
		if d < wait {
			wait = d
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e := <-cs.updates:
		writeJSON(w, http.StatusOK, e)
	case <-cs.done:
		writeError(w, http.StatusGone, "session closed")
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
	}
}
