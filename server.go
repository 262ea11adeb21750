// Package tripflow - server.go
// The HTTP surface: chat, agent management, the memory API, the expiry
// sweep and the WhatsApp webhook.

package tripflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Server wires the HTTP routes to the assistant, the storage layer and
// the memory store.
type Server struct {
	assistant *Assistant
	storage   Storage
	memories  MemoryStore
	whatsapp  *WhatsAppClient
	whAgentID uuid.UUID
	logger    *slog.Logger
	mux       *http.ServeMux
}

func NewServer(assistant *Assistant, storage Storage, memories MemoryStore) *Server {
	s := &Server{
		assistant: assistant,
		storage:   storage,
		memories:  memories,
		logger:    slog.Default(),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// EnableWhatsApp turns on the webhook endpoints. Inbound messages are
// routed to agentID and replies are sent back through client.
func (s *Server) EnableWhatsApp(client *WhatsAppClient, agentID uuid.UUID) {
	s.whatsapp = client
	s.whAgentID = agentID
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/chat/send-message", s.handleSendMessage)

	s.mux.HandleFunc("POST /v1/agents", s.handleCreateAgent)
	s.mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	s.mux.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)
	s.mux.HandleFunc("PUT /v1/agents/{id}", s.handleUpdateAgent)
	s.mux.HandleFunc("DELETE /v1/agents/{id}", s.handleDeleteAgent)

	s.mux.HandleFunc("GET /v1/agents/{id}/conversations", s.handleGetConversations)

	s.mux.HandleFunc("PUT /v1/agents/{id}/memories", s.handleUpsertMemory)
	s.mux.HandleFunc("POST /v1/agents/{id}/memories/search", s.handleSearchMemories)
	s.mux.HandleFunc("DELETE /v1/agents/{id}/memories/{key}", s.handleDeleteMemory)

	s.mux.HandleFunc("GET /v1/hotels/{id}/availability", s.handleGetAvailability)
	s.mux.HandleFunc("POST /v1/bookings", s.handleCreateBooking)
	s.mux.HandleFunc("GET /v1/bookings/{id}", s.handleGetBooking)
	s.mux.HandleFunc("POST /v1/bookings/{id}/cancel", s.handleCancelBooking)

	s.mux.HandleFunc("POST /v1/admin/purge-expired", s.handlePurgeExpired)

	s.mux.HandleFunc("GET /v1/webhook", s.handleVerifyWebhook)
	s.mux.HandleFunc("POST /v1/webhook", s.handleWebhook)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendMessageRequest struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	LeadID    string `json:"lead_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	agentID, err := uuid.Parse(body.AgentID)
	if err != nil {
		s.writeError(w, validationErr("invalid agent_id: %v", err))
		return
	}
	req := ChatRequest{
		AgentID:   agentID,
		SessionID: body.SessionID,
		Phone:     body.Phone,
		Message:   body.Message,
	}
	if body.LeadID != "" {
		leadID, err := uuid.Parse(body.LeadID)
		if err != nil {
			s.writeError(w, validationErr("invalid lead_id: %v", err))
			return
		}
		req.LeadID = &leadID
	}

	reply, err := s.assistant.SendMessage(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type agentRequest struct {
	Name           string `json:"name"`
	SystemPrompt   string `json:"system_prompt"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
	Personality    string `json:"personality,omitempty"`
	UseEmojis      bool   `json:"use_emojis,omitempty"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body agentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	if body.Name == "" || body.SystemPrompt == "" {
		s.writeError(w, validationErr("name and system_prompt are required"))
		return
	}
	agent := &Agent{
		Name:           body.Name,
		SystemPrompt:   body.SystemPrompt,
		WelcomeMessage: body.WelcomeMessage,
		Personality:    body.Personality,
		UseEmojis:      body.UseEmojis,
	}
	if err := s.storage.CreateAgent(r.Context(), agent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.storage.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	agent, err := s.storage.GetAgent(r.Context(), agentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	var body agentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	agent, err := s.storage.GetAgent(r.Context(), agentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if body.Name != "" {
		agent.Name = body.Name
	}
	if body.SystemPrompt != "" {
		agent.SystemPrompt = body.SystemPrompt
	}
	agent.WelcomeMessage = body.WelcomeMessage
	agent.Personality = body.Personality
	agent.UseEmojis = body.UseEmojis
	if err := s.storage.UpdateAgent(r.Context(), agent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	if err := s.storage.DeleteAgent(r.Context(), agentID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConversations(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	var leadID *uuid.UUID
	if raw := r.URL.Query().Get("lead_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, validationErr("invalid lead_id: %v", err))
			return
		}
		leadID = &id
	}
	convs, err := s.storage.GetConversations(r.Context(), agentID, leadID, 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

type upsertMemoryRequest struct {
	LeadID         string     `json:"lead_id,omitempty"`
	Key            string     `json:"key"`
	Value          string     `json:"value"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleUpsertMemory(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	var body upsertMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	in := MemoryUpsert{
		AgentID:        agentID,
		Key:            body.Key,
		Value:          body.Value,
		RelevanceScore: body.RelevanceScore,
		Metadata:       body.Metadata,
		ExpiresAt:      body.ExpiresAt,
	}
	if body.LeadID != "" {
		leadID, err := uuid.Parse(body.LeadID)
		if err != nil {
			s.writeError(w, validationErr("invalid lead_id: %v", err))
			return
		}
		in.LeadID = &leadID
	}
	mem, err := s.memories.Upsert(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

type searchMemoriesRequest struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit,omitempty"`
	MinRelevance *float64 `json:"min_relevance,omitempty"`
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	var body searchMemoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	results, err := s.memories.Search(r.Context(), MemorySearch{
		AgentID:      agentID,
		Query:        body.Query,
		Limit:        body.Limit,
		MinRelevance: body.MinRelevance,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathAgentID(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	if err := s.memories.DeleteMemory(r.Context(), agentID, key); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetAvailability reads the date range from query parameters,
// dates formatted YYYY-MM-DD.
func (s *Server) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, validationErr("invalid hotel id: %v", err))
		return
	}
	params := r.URL.Query()
	checkIn, err := parseDate(params.Get("check_in"))
	if err != nil {
		s.writeError(w, validationErr("invalid check_in: %v", err))
		return
	}
	checkOut, err := parseDate(params.Get("check_out"))
	if err != nil {
		s.writeError(w, validationErr("invalid check_out: %v", err))
		return
	}
	q := AvailabilityQuery{HotelID: hotelID, CheckIn: checkIn, CheckOut: checkOut}
	if raw := params.Get("room_type_id"); raw != "" {
		roomTypeID, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, validationErr("invalid room_type_id: %v", err))
			return
		}
		q.RoomTypeID = &roomTypeID
	}

	availability, err := s.storage.GetAvailability(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

type createBookingRequest struct {
	HotelID         string `json:"hotel_id"`
	RoomTypeID      string `json:"room_type_id"`
	LeadID          string `json:"lead_id,omitempty"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	GuestsCount     int    `json:"guests_count"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}
	hotelID, err := uuid.Parse(body.HotelID)
	if err != nil {
		s.writeError(w, validationErr("invalid hotel_id: %v", err))
		return
	}
	roomTypeID, err := uuid.Parse(body.RoomTypeID)
	if err != nil {
		s.writeError(w, validationErr("invalid room_type_id: %v", err))
		return
	}
	checkIn, err := parseDate(body.CheckIn)
	if err != nil {
		s.writeError(w, validationErr("invalid check_in: %v", err))
		return
	}
	checkOut, err := parseDate(body.CheckOut)
	if err != nil {
		s.writeError(w, validationErr("invalid check_out: %v", err))
		return
	}
	req := BookingRequest{
		HotelID:         hotelID,
		RoomTypeID:      roomTypeID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		GuestsCount:     body.GuestsCount,
		SpecialRequests: body.SpecialRequests,
	}
	if body.LeadID != "" {
		leadID, err := uuid.Parse(body.LeadID)
		if err != nil {
			s.writeError(w, validationErr("invalid lead_id: %v", err))
			return
		}
		req.LeadID = &leadID
	}

	booking, err := s.storage.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, validationErr("invalid booking id: %v", err))
		return
	}
	booking, err := s.storage.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, validationErr("invalid booking id: %v", err))
		return
	}
	if err := s.storage.CancelBooking(r.Context(), bookingID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required, format YYYY-MM-DD")
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) handlePurgeExpired(w http.ResponseWriter, r *http.Request) {
	purged, err := s.memories.PurgeExpired(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

// handleVerifyWebhook answers Meta's subscription handshake. The hub
// fields arrive as query parameters.
func (s *Server) handleVerifyWebhook(w http.ResponseWriter, r *http.Request) {
	if s.whatsapp == nil {
		http.Error(w, "webhook not configured", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && s.whatsapp.VerifyToken(q.Get("hub.verify_token")) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "invalid verify token", http.StatusForbidden)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.whatsapp == nil {
		http.Error(w, "webhook not configured", http.StatusNotFound)
		return
	}
	var payload WhatsAppWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, validationErr("invalid JSON body: %v", err))
		return
	}

	for _, msg := range payload.TextMessages() {
		reply, err := s.assistant.SendMessage(r.Context(), ChatRequest{
			AgentID: s.whAgentID,
			Phone:   msg.From,
			Message: msg.Text,
		})
		if err != nil {
			s.logger.Error("webhook message failed", "from", msg.From, "error", err)
			continue
		}
		if err := s.whatsapp.SendText(r.Context(), msg.From, reply.Message); err != nil {
			s.logger.Error("failed to send whatsapp reply", "to", msg.From, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) pathAgentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	agentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, validationErr("invalid agent id: %v", err))
		return uuid.Nil, false
	}
	return agentID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
