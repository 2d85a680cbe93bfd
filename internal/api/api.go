// Package api provides HTTP handlers and the main API server logic for
// CareLink.
//
// It exposes RESTful endpoints for managing patients, starting check-in
// calls, and driving triage conversations, plus the Twilio voice webhook.
// The API integrates with the triage, telephony, scheduler, and store
// modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/JoyZhuoz/CareLink-sub000/internal/genai"
	"github.com/JoyZhuoz/CareLink-sub000/internal/safety"
	"github.com/JoyZhuoz/CareLink-sub000/internal/scheduler"
	"github.com/JoyZhuoz/CareLink-sub000/internal/session"
	"github.com/JoyZhuoz/CareLink-sub000/internal/store"
	"github.com/JoyZhuoz/CareLink-sub000/internal/telephony"
	"github.com/JoyZhuoz/CareLink-sub000/internal/triage"
)

// DefaultAddr is the API listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	BaseURL     string
	DefaultCron string
	PolicyFile  string
}

// Option defines a functional option for API server configuration.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithBaseURL sets the public base URL Twilio uses to reach the voice
// webhook.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithDefaultCron sets the default cron schedule for recurring check-ins.
func WithDefaultCron(expr string) Option {
	return func(o *Opts) { o.DefaultCron = expr }
}

// WithPolicyFile sets the path of a YAML triage policy overriding the
// built-in defaults.
func WithPolicyFile(path string) Option {
	return func(o *Opts) { o.PolicyFile = path }
}

// Server holds the wired application modules behind the HTTP handlers.
type Server struct {
	orchestrator *triage.Orchestrator
	st           store.Store
	placer       telephony.CallPlacer
	sched        *scheduler.Scheduler
	policy       *safety.Policy
	baseURL      string
	defaultCron  string
}

// NewServer wires the application modules into a server. The placer and
// scheduler may be nil; the corresponding endpoints then report the feature
// as unavailable.
func NewServer(orchestrator *triage.Orchestrator, st store.Store, placer telephony.CallPlacer, sched *scheduler.Scheduler, policy *safety.Policy, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		orchestrator: orchestrator,
		st:           st,
		placer:       placer,
		sched:        sched,
		policy:       policy,
		baseURL:      cfg.BaseURL,
		defaultCron:  cfg.DefaultCron,
	}
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/turn", s.turnHandler)
	mux.HandleFunc("/webhooks/twilio/voice", s.voiceWebhookHandler)
	mux.HandleFunc("/patients", s.patientsHandler)
	mux.HandleFunc("/checkins", s.checkinsHandler)
	mux.HandleFunc("/summaries", s.summariesHandler)
	return mux
}

// webhookURL builds the voice webhook URL for a subject's call.
func (s *Server) webhookURL(subjectID string) string {
	return fmt.Sprintf("%s/webhooks/twilio/voice?subject_id=%s", s.baseURL, url.QueryEscape(subjectID))
}

// Run builds all application modules from options and serves the API. It
// blocks until the HTTP server stops.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, telephonyOpts []telephony.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	policy := safety.DefaultPolicy()
	if cfg.PolicyFile != "" {
		loaded, err := safety.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load triage policy: %w", err)
		}
		policy = loaded
		slog.Info("Run: triage policy loaded from file", "path", cfg.PolicyFile)
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		// Triage still works on the fallback heuristic alone.
		slog.Warn("Run: GenAI client unavailable, falling back to heuristic triage", "error", err)
		genaiClient = nil
	}
	var client genai.ClientInterface
	if genaiClient != nil {
		client = genaiClient
	}

	gateway := triage.NewGenAIGateway(client, store.NewContextResolver(st))
	orchestrator := triage.NewOrchestrator(session.NewInMemoryStore(), gateway, policy, st)

	placer, err := telephony.NewClient(telephonyOpts...)
	var callPlacer telephony.CallPlacer
	if err != nil {
		slog.Warn("Run: telephony client unavailable, outbound calls disabled", "error", err)
	} else {
		callPlacer = placer
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	server := NewServer(orchestrator, st, callPlacer, sched, policy, apiOpts...)
	if cfg.DefaultCron != "" && callPlacer != nil {
		if err := server.ScheduleRecurringCheckins(cfg.DefaultCron); err != nil {
			return fmt.Errorf("failed to schedule default check-ins: %w", err)
		}
	}
	slog.Info("Run: CareLink API listening", "addr", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, server.Handler())
}

// ScheduleRecurringCheckins registers a cron job that places a check-in call
// to every registered patient on the given schedule.
func (s *Server) ScheduleRecurringCheckins(expr string) error {
	if s.sched == nil || s.placer == nil {
		return fmt.Errorf("scheduling requires both a scheduler and a telephony client")
	}
	return s.sched.AddJob(expr, func() {
		ctx := context.Background()
		patients, err := s.st.ListPatients(ctx)
		if err != nil {
			slog.Error("Server.ScheduleRecurringCheckins: patient listing failed", "error", err)
			return
		}
		slog.Info("Server.ScheduleRecurringCheckins: placing scheduled check-ins", "patients", len(patients))
		for _, p := range patients {
			if _, err := s.placer.PlaceCall(ctx, p.PhoneNumber, s.webhookURL(p.SubjectID)); err != nil {
				slog.Error("Server.ScheduleRecurringCheckins: call failed", "error", err, "subjectID", p.SubjectID)
			}
		}
	})
}

// buildStore selects a backend by DSN: blank for in-memory, otherwise SQLite
// or Postgres.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}
