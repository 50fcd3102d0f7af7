// Package webhook implements the receiver from spec.md §4.8: a single
// POST endpoint per bot that authenticates the request and feeds the
// parsed update into the bot's own dispatcher, grounded on the teacher's
// internal/http-server/handlers/stripehandler.Event body-read/verify/parse
// shape and internal/http-server/api.Server's listener and shutdown idiom.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/go-chi/chi/v5"

	"multibot/internal/botmgr"
	"multibot/lib/sl"
)

// BotLookup is the subset of *botmgr.Manager the receiver needs.
type BotLookup interface {
	GetDispatcher(id string) (*tgbotapi.Bot, *ext.Dispatcher, error)
}

// ManagerLookup adapts a *botmgr.Manager (which hands back its own
// *tg.Client wrapper) to the BotLookup interface.
type ManagerLookup struct{ Manager *botmgr.Manager }

func (a ManagerLookup) GetDispatcher(id string) (*tgbotapi.Bot, *ext.Dispatcher, error) {
	client, dispatcher, err := a.Manager.GetDispatcher(id)
	if err != nil {
		return nil, nil, err
	}
	return client.Bot, dispatcher, nil
}

// Server exposes POST /<prefix>/<bot_id> and nothing else.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// New builds and starts listening on host:port. prefix and secret come
// from the process config (WEBHOOK_PREFIX, WEBHOOK_SECRET); secret may be
// empty, in which case signature verification is skipped entirely.
func New(host, port, prefix, secret string, bots BotLookup, log *slog.Logger) (*Server, error) {
	s := &Server{log: log.With(sl.Module("webhook"))}

	router := chi.NewRouter()
	router.Post(fmt.Sprintf("/%s/{bot_id}", prefix), s.handle(bots, secret))

	httpLog := slog.NewLogLogger(s.log.Handler(), slog.LevelError)
	s.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	addr := net.JoinHostPort(host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s.log.Info("starting webhook receiver", slog.String("address", addr), slog.String("prefix", prefix))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.With(sl.Err(err)).Error("webhook server error")
		}
	}()

	return s, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down webhook receiver")
	return s.httpServer.Shutdown(ctx)
}

// DeriveSecret computes the per-bot header value expected from Telegram:
// HMAC-SHA256(globalSecret, botID) truncated to 32 hex chars, per spec.md §6.
func DeriveSecret(globalSecret, botID string) string {
	mac := hmac.New(sha256.New, []byte(globalSecret))
	mac.Write([]byte(botID))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

func (s *Server) handle(bots BotLookup, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		botID := chi.URLParam(r, "bot_id")
		log := s.log.With(sl.BotID(botID), slog.String("path", r.URL.Path))

		bot, dispatcher, err := bots.GetDispatcher(botID)
		if err != nil {
			if errors.Is(err, botmgr.ErrBotNotFound) {
				http.Error(w, "bot not found", http.StatusNotFound)
				return
			}
			log.With(sl.Err(err)).Warn("webhook: bot not running")
			http.Error(w, "bot not running", http.StatusServiceUnavailable)
			return
		}

		if secret != "" {
			expected := DeriveSecret(secret, botID)
			got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				log.Warn("webhook: secret mismatch")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			log.With(sl.Err(err)).Error("webhook: read body")
			http.Error(w, "read", http.StatusBadRequest)
			return
		}

		var update tgbotapi.Update
		if err := json.Unmarshal(payload, &update); err != nil {
			log.With(sl.Err(err)).Error("webhook: unmarshal update")
			http.Error(w, "json", http.StatusBadRequest)
			return
		}

		if err := dispatcher.ProcessUpdate(bot, &update, nil); err != nil {
			log.With(sl.Err(err)).Error("webhook: process update")
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
