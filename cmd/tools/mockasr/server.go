package main

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sampleRate = 16000
	// bytes of PCM16 mono in one recognition window
	defaultWindowBytes = sampleRate * 3 * 2
)

var cannedLines = []string{
	"I agree with your point.",
	"Let me explain further.",
	"Here's my argument.",
	"To counter your idea.",
	"Let's break this down.",
}

// Scores mirrors the score object of the debate route.
type Scores struct {
	Clarity        int     `json:"clarity"`
	Logic          int     `json:"logic"`
	Evidence       int     `json:"evidence"`
	Persuasiveness int     `json:"persuasiveness"`
	Delivery       int     `json:"delivery"`
	OverallScore   float64 `json:"overall_score"`
	Feedback       string  `json:"feedback"`
}

type reply struct {
	Text      string  `json:"text,omitempty"`
	Scores    *Scores `json:"scores,omitempty"`
	Info      string  `json:"info,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type mockServer struct {
	windowBytes int
	next        atomic.Uint64
	upgrader    websocket.Upgrader
}

func newMockServer(windowBytes int) *mockServer {
	if windowBytes <= 0 {
		windowBytes = defaultWindowBytes
	}
	return &mockServer{
		windowBytes: windowBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *mockServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws/transcript", s.serve(false))
	r.Get("/ws/debate", s.serve(true))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"mock-transcription"}`))
	})
	return r
}

func (s *mockServer) serve(scored bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Str("module", "cmd.mockasr").Err(err).Msg("upgrade failed")
			return
		}
		defer conn.Close()

		route := "transcript"
		if scored {
			route = "debate"
		}
		log.Info().Str("module", "cmd.mockasr").Str("route", route).Str("connect_id", r.Header.Get("X-Connect-Id")).Msg("client connected")

		if err := conn.WriteJSON(reply{Info: "Connected to " + route + " endpoint."}); err != nil {
			return
		}

		var buffered int
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				log.Info().Str("module", "cmd.mockasr").Str("route", route).Msg("client disconnected")
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}

			buffered += len(data)
			for buffered >= s.windowBytes {
				buffered -= s.windowBytes
				if err := conn.WriteJSON(s.recognise(scored)); err != nil {
					return
				}
			}
		}
	}
}

func (s *mockServer) recognise(scored bool) reply {
	n := s.next.Add(1) - 1
	out := reply{Text: cannedLines[n%uint64(len(cannedLines))]}
	if scored {
		base := int(n%4) + 6
		sc := &Scores{
			Clarity:        base,
			Logic:          base + 1,
			Evidence:       base - 1,
			Persuasiveness: base,
			Delivery:       base + 1,
			Feedback:       "Solid structure, back the claim with an example.",
		}
		sc.OverallScore = float64(sc.Clarity+sc.Logic+sc.Evidence+sc.Persuasiveness+sc.Delivery) / 5
		out.Scores = sc
		out.Timestamp = time.Now().UnixMilli()
	}
	return out
}
