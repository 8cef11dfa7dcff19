package optimize

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"listing-optimizer-server/modules/common/apperr"
	redisutil "listing-optimizer-server/modules/common/redis"
)

// Handler - Job API HTTP/WebSocket 핸들러
type Handler struct {
	service  *Service
	upgrader websocket.Upgrader
}

// NewHandler - 핸들러 생성
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/jobs", h.SubmitJob).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/jobs/{jobId}", h.GetJob).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/jobs/{jobId}/cancel", h.CancelJob).Methods("POST", "OPTIONS")
	router.HandleFunc("/ws/jobs/{jobId}", h.StreamJob).Methods("GET")
}

// SubmitJob - POST /api/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	jobID, queuePos, err := h.service.SubmitJob(r.Context(), req.URL)
	if err != nil {
		status := http.StatusInternalServerError
		if apperr.IsValidation(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, SubmitResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		Success:       true,
		JobID:         jobID,
		Queue:         redisutil.QueueKey,
		QueuePosition: queuePos,
	})
}

// GetJob - GET /api/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	jobID := mux.Vars(r)["jobId"]
	snapshot, err := h.service.GetJobSnapshot(r.Context(), jobID)
	if err != nil {
		if apperr.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// CancelJob - POST /api/jobs/{jobId}/cancel
// 이미 종료된 Job 취소 시도는 409
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	jobID := mux.Vars(r)["jobId"]
	cancelled, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		if apperr.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, CancelResponse{
				Success: false,
				Message: err.Error(),
				JobID:   jobID,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, CancelResponse{
			Success: false,
			Message: err.Error(),
			JobID:   jobID,
		})
		return
	}

	snapshot, snapErr := h.service.GetJobSnapshot(r.Context(), jobID)

	resp := CancelResponse{
		Success: cancelled,
		JobID:   jobID,
	}
	if snapErr == nil {
		resp.JobStatus = string(snapshot.Status)
		resp.CompletedImages = snapshot.Progress.Completed
		resp.TotalImages = snapshot.Progress.Total
	}

	if !cancelled {
		resp.Message = "job already finished, nothing to cancel"
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	resp.Message = "job cancelled, completed images are preserved"
	writeJSON(w, http.StatusOK, resp)
}

// StreamJob - GET /ws/jobs/{jobId}
// 2초마다 진행 상황 스냅샷 전송, 종료 상태에 도달하면 마지막 스냅샷 후 종료
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if _, err := h.service.GetJobSnapshot(r.Context(), jobID); err != nil {
		if apperr.IsNotFound(err) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed for job %s: %v", jobID, err)
		return
	}
	defer conn.Close()

	log.Printf("🔌 WebSocket connected for job: %s", jobID)

	// 클라이언트 close 감지용 read 루프
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		snapshot, err := h.service.GetJobSnapshot(r.Context(), jobID)
		if err != nil {
			log.Printf("⚠️ Snapshot failed for streamed job %s: %v", jobID, err)
			return
		}

		if err := conn.WriteJSON(snapshot); err != nil {
			log.Printf("🔌 WebSocket write failed for job %s: %v", jobID, err)
			return
		}

		if snapshot.Status.Terminal() {
			log.Printf("🏁 WebSocket stream finished for job %s (%s)", jobID, snapshot.Status)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snapshot.Status)))
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("⚠️ Failed to encode response: %v", err)
	}
}
