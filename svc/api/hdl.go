package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"clipd/cfg"
	"clipd/pkg/domain"
	"clipd/svc/svc"
	"clipd/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// PasswordHeader carries the caller-supplied clip password. It is opaque
// to the transport layer and passed straight through to the service.
const PasswordHeader = "X-Clip-Password"

type Hdl struct {
	clips *svc.Clips
	cfg   *cfg.Cfg
}

type CreateReq struct {
	Content   string `json:"content"`
	Title     string `json:"title,omitempty"`
	Password  string `json:"password,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type CreateResp struct {
	ShortCode string     `json:"short_code"`
	PostedAt  time.Time  `json:"posted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ClipResp struct {
	ShortCode         string     `json:"short_code"`
	Content           string     `json:"content"`
	Title             string     `json:"title,omitempty"`
	PostedAt          time.Time  `json:"posted_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Hits              int64      `json:"hits"`
	PasswordProtected bool       `json:"password_protected"`
}

func (h *Hdl) CreateClip(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", r.Header.Get("Content-Type")).Msg("invalid Content-Type header")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxClipSize*2)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request body")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	clip, err := h.clips.Create(r.Context(), domain.NewClipParams{
		Content:   req.Content,
		Title:     req.Title,
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		logServiceErr(r, err, "create clip failed")
		writeErr(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		ShortCode: clip.ShortCode.String(),
		PostedAt:  clip.PostedAt,
		ExpiresAt: clip.ExpiresAt,
	})
}

func (h *Hdl) GetClip(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	clip, err := h.fetchClip(r)
	if err != nil {
		logServiceErr(r, err, "get clip failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ClipResp{
		ShortCode:         clip.ShortCode.String(),
		Content:           clip.Content,
		Title:             clip.Title,
		PostedAt:          clip.PostedAt,
		ExpiresAt:         clip.ExpiresAt,
		Hits:              clip.Hits,
		PasswordProtected: clip.PasswordProtected(),
	})
}

func (h *Hdl) GetRawClip(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	clip, err := h.fetchClip(r)
	if err != nil {
		logServiceErr(r, err, "get raw clip failed")
		writeErr(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, clip.Content)
}

func (h *Hdl) fetchClip(r *http.Request) (*domain.Clip, error) {
	return h.clips.Get(r.Context(), domain.GetClipParams{
		ShortCode: domain.ShortCodeFromString(chi.URLParam(r, "code")),
		Password:  r.Header.Get(PasswordHeader),
	})
}

// logServiceErr logs only the unexpected class at error severity;
// validation and permission outcomes are expected and stay at debug.
func logServiceErr(r *http.Request, err error, msg string) {
	log := hlog.FromRequest(r)
	switch domain.Status(err) {
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg(msg)
	default:
		log.Debug().Err(err).Msg(msg)
	}
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(domain.Status(err))
	json.NewEncoder(w).Encode(domain.ToResp(err))
}
