package order

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/order-bot/internal/sheet"
)

// writeJSON encodes a response body
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleCallback receives LINE webhook deliveries
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.webhook.Handle(r); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			http.Error(w, "Invalid signature", http.StatusBadRequest)
			return
		}
		slog.Error("Error handling webhook", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListOrders returns every order row
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.dashboard.Orders(r.Context())
	if err != nil {
		slog.Error("Error listing orders", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleCheckOrder(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, sheet.StatusChecked)
}

func (s *Server) handleUncheckOrder(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, sheet.StatusPending)
}

// setStatus handles the check and uncheck toggles
func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status sheet.Status) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "Order ID required")
		return
	}

	err := s.dashboard.SetStatus(r.Context(), req.OrderID, status)
	switch {
	case errors.Is(err, sheet.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case err != nil:
		slog.Error("Error updating order status", "order", req.OrderID, "status", status, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// handleFindImage looks up the image uploaded for a run number
func (s *Server) handleFindImage(w http.ResponseWriter, r *http.Request) {
	found, err := s.dashboard.FindImage(r.Context(), r.PathValue("run"))
	if err != nil {
		slog.Error("Error finding image", "run", r.PathValue("run"), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleGetBlob proxies a stored file
func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.dashboard.Blob(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrBlobNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error downloading blob", "id", r.PathValue("id"), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetFolder returns the active upload folder
func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	info, err := s.dashboard.Folder(r.Context())
	if errors.Is(err, ErrNoFolder) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("Error reading folder setting", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleSetFolder changes the active upload folder
func (s *Server) handleSetFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FolderID == "" {
		writeError(w, http.StatusBadRequest, "Folder ID required")
		return
	}

	if err := s.dashboard.SetFolder(req.FolderID); err != nil {
		slog.Error("Error saving folder setting", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleGetFolder(w, r)
}
