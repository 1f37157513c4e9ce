package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/checkout"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/models"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/web"
)

// maxBodyBytes bounds the generate request, prompts are short
const maxBodyBytes = 64 << 10

// Handlers serves the page and the JSON API
type Handlers struct {
	service         *checkout.Service
	site            *web.Site
	title           string
	maxPromptLength int
}

func NewHandlers(service *checkout.Service, site *web.Site, title string, maxPromptLength int) *Handlers {
	return &Handlers{
		service:         service,
		site:            site,
		title:           title,
		maxPromptLength: maxPromptLength,
	}
}

// Routes registers every page and API route on the router. apiMiddlewares wrap /api only.
func (h *Handlers) Routes(r chi.Router, apiMiddlewares ...func(http.Handler) http.Handler) {
	r.Get("/", h.Index)
	r.Handle("/static/*", h.site.StaticHandler())
	r.Route("/api", func(r chi.Router) {
		r.Use(apiMiddlewares...)
		r.Get("/networks", h.Networks)
		r.Get("/payments/{network}/{txHash}", h.Payment)
		// every method reaches the handler so it can answer 405 in the API error format
		r.HandleFunc("/generateImage", h.GenerateImage)
	})
}

func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	err := h.site.RenderIndex(w, web.PageData{
		Title:           h.title,
		RequirePayment:  h.service.RequirePayment(),
		MaxPromptLength: h.maxPromptLength,
		Networks:        h.service.Networks(),
	})
	if err != nil {
		Logger.Error().Err(err).Msg("Failed to render index")
		http.Error(w, msgInternalError, http.StatusInternalServerError)
	}
}

func (h *Handlers) Networks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NetworksResponse{
		RequirePayment: h.service.RequirePayment(),
		Networks:       h.service.Networks(),
	})
}

func (h *Handlers) Payment(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")
	txHash := chi.URLParam(r, "txHash")

	payment, err := h.service.CheckPayment(r.Context(), network, txHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, models.APIError{
			Error: msgMethodNotAllowed,
			Code:  models.CodeMethodNotAllowed,
		})
		return
	}

	var req models.GenerateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, models.APIError{
			Error: "Invalid request body",
			Code:  models.CodeInvalidRequest,
		})
		return
	}

	resp, err := h.service.Redeem(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
