package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/pricing"
	"dynamic-flea-price/internal/ragfair"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, ready := s.deps.Engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       s.deps.Version,
		"uptime":        time.Since(s.started).Seconds(),
		"initialised":   ready,
		"last_decay_at": s.deps.Engine.LastDecayAt(),
	})
}

func (s *Server) handleMultipliers(w http.ResponseWriter, r *http.Request) {
	state, ok := s.deps.Engine.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "flea state not initialised")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleItemMultiplier(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	b := s.deps.Engine.Breakdown(itemID)
	writeJSON(w, http.StatusOK, map[string]any{
		"breakdown":   b,
		"priceFactor": flea.ApplyMultiplier(1, b.Combined),
	})
}

func (s *Server) handleOfferPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items       []ragfair.Item `json:"items"`
		Currency    string         `json:"currency"`
		IsPackOffer bool           `json:"isPackOffer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}

	q, err := s.deps.Pricer.Quote(req.Items, req.Currency, req.IsPackOffer)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownCurrency) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price": q.Total.InexactFloat64(),
		"quote": q,
	})
}

func (s *Server) handleValidateOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []ragfair.Item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	warning := s.deps.Hooks.ValidatePlayerOffer(req.Items)
	if warning != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       false,
			"warnings": []ragfair.Warning{*warning},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "warnings": []ragfair.Warning{}})
}

func (s *Server) handleCompleteOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string         `json:"sessionId"`
		OfferID      string         `json:"offerId"`
		Offer        *ragfair.Offer `json:"offer"`
		BoughtAmount int            `json:"boughtAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Offer != nil {
		s.deps.Book.PutOffer(req.SessionID, *req.Offer)
		if req.OfferID == "" {
			req.OfferID = req.Offer.ID
		}
	}
	if req.SessionID == "" || req.OfferID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and offerId required")
		return
	}
	if req.BoughtAmount <= 0 {
		req.BoughtAmount = 1
	}

	if err := s.deps.Hooks.CompleteOffer(r.Context(), req.SessionID, req.OfferID, req.BoughtAmount); err != nil {
		if errors.Is(err, ragfair.ErrOfferNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tpl   string  `json:"tpl"`
		Count float64 `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	recorded, err := s.deps.Hooks.RecordPurchase(r.Context(), req.Tpl, req.Count)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded":   recorded,
		"multiplier": s.deps.Engine.ItemMultiplier(req.Tpl),
	})
}

func (s *Server) handleProcessProfiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profiles []ragfair.Profile          `json:"profiles"`
		Offers   map[string][]ragfair.Offer `json:"offers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	for _, p := range req.Profiles {
		s.deps.Book.PutProfile(p)
	}
	for sessionID, offers := range req.Offers {
		for _, o := range offers {
			s.deps.Book.PutOffer(sessionID, o)
		}
	}

	processed := s.deps.Hooks.Update(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": processed,
		"profiles":  s.deps.Book.Profiles(r.Context()),
	})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	at := time.Now().UTC()
	if err := s.deps.Ticker.ProcessTick(r.Context(), at); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "at": at})
}
