package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/naivary/relay/logger"
	"github.com/naivary/relay/models"
	"golang.org/x/exp/slog"
)

type HTTPHandler struct {
	router chi.Router
	relay  *Relay
	bucket *Bucket
	logger *slog.Logger
	opts   HTTPHandlerOptions
}

func NewHTTPHandler(rl *Relay, opts HTTPHandlerOptions) *HTTPHandler {
	def := DefaultHTTPHandlerOptions()
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = def.MaxBodySize
	}
	if opts.IsAuthorized == nil {
		opts.IsAuthorized = def.IsAuthorized
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = def.AllowedOrigins
	}
	h := HTTPHandler{
		relay:  rl,
		bucket: opts.Bucket,
		logger: opts.Logger,
		opts:   opts,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.logRequest)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
	}))
	r.Use(h.limitBody)

	r.Get("/healthz", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.opts.IsAuthorized)
		r.Post("/ai-chat", h.aiChat)
		r.Post("/speech-chat", h.speechChat)
	})
	if h.bucket != nil {
		r.Route("/objects", func(r chi.Router) {
			r.Use(h.opts.IsAuthorized)
			r.Get("/name/{name}", h.find)
			r.Put("/name/{name}", h.upload)
			r.Get("/{id}", h.get)
			r.Get("/{id}/content", h.read)
			r.Delete("/{id}", h.remove)
		})
	}
	h.router = r
	return &h
}

func (h HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *HTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeMessage reads the message of the request body. A body which
// is not valid JSON is a validation error like a missing message.
func (h *HTTPHandler) decodeMessage(r *http.Request) (string, error) {
	m := models.MessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return "", E(KindValidation, "decode request", err)
	}
	return m.Message, nil
}

func (h *HTTPHandler) aiChat(w http.ResponseWriter, r *http.Request) {
	msg, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	answer, err := h.relay.ChatCompletion(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, models.ChatResponse{Response: answer})
}

func (h *HTTPHandler) speechChat(w http.ResponseWriter, r *http.Request) {
	msg, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.relay.SpeechRelay(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.ResponseText == nil {
		logger.New(r.Context(), h.logger).Warningf("no response for query %s: %s", res.ObjectID, res.ResponseStatus)
	}
	h.writeJSON(w, r, http.StatusOK, models.SpeechResponse{
		Status:         "success",
		RecognizedText: res.RecognizedText,
		DriveFileID:    res.ObjectID,
		DriveLink:      res.ShareLink,
		TTSResponse:    res.ResponseText,
		ResponseStatus: string(res.ResponseStatus),
	})
}

func (h *HTTPHandler) find(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ref, err := h.relay.Storage().FindByName(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toRefModel(ref))
}

// upload creates or overwrites the object called name with the raw
// request body. This is how an external producer hands in a response.
func (h *HTTPHandler) upload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !isValidObjectName(name) {
		h.writeError(w, r, E(KindValidation, "upload", ErrInvalidNamePattern))
		return
	}
	ct := contentType(name, r.Header.Get("Content-Type"))
	ref, err := h.relay.Storage().CreateOrUpdate(r.Context(), name, r.Body, ct)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = E(KindValidation, "upload", err)
		}
		h.writeError(w, r, err)
		return
	}
	logger.New(r.Context(), h.logger).Infof("object %s stored with id %s", name, ref.ID)
	h.writeJSON(w, r, http.StatusOK, toRefModel(ref))
}

func (h *HTTPHandler) get(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.object(w, r)
	if !ok {
		return
	}
	m := obj.ToModel()
	m.Payload = nil
	h.writeJSON(w, r, http.StatusOK, m)
}

func (h *HTTPHandler) read(w http.ResponseWriter, r *http.Request) {
	obj, ok := h.object(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", obj.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := obj.WriteTo(w); err != nil {
		h.logger.Error("streaming the object failed", slog.String("id", obj.ID()), slog.String("msg", err.Error()))
	}
}

func (h *HTTPHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidUUID(id) {
		h.writeError(w, r, E(KindValidation, "trash", ErrInvalidID))
		return
	}
	if err := h.bucket.Trash(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) object(w http.ResponseWriter, r *http.Request) (*Object, bool) {
	id := chi.URLParam(r, "id")
	if !isValidUUID(id) {
		h.writeError(w, r, E(KindValidation, "get", ErrInvalidID))
		return nil, false
	}
	obj, err := h.bucket.get("get", id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return obj, true
}

func toRefModel(ref ObjectRef) models.ObjectRef {
	return models.ObjectRef{ID: ref.ID, Name: ref.Name, Container: ref.Container}
}
