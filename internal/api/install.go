package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bard-backend/internal/slack"
)

// Scopes requested during workspace installation.
var installScopes = "channels:read,channels:history,commands,users:read,app_mentions:read,chat:write,im:history"

const stateTTL = 10 * time.Minute

type OAuthExchanger interface {
	OAuthAccess(ctx context.Context, clientID, clientSecret, code string) (slack.Installation, error)
}

type InstallationSaver interface {
	Save(ctx context.Context, inst slack.Installation) error
}

// InstallService implements the OAuth install flow: redirect to Slack's
// authorize page with an anti-forgery state, then exchange the returned code
// and persist the workspace installation.
//
// State tokens are held in memory with a short TTL; an install that races a
// cold start just restarts the flow, so the instance-local store is fine
// here, unlike conversation state.
type InstallService struct {
	exchanger    OAuthExchanger
	installs     InstallationSaver
	clientID     string
	clientSecret string

	mu     sync.Mutex
	states map[string]time.Time
}

func NewInstallService(exchanger OAuthExchanger, installs InstallationSaver, clientID, clientSecret string) *InstallService {
	return &InstallService{
		exchanger:    exchanger,
		installs:     installs,
		clientID:     clientID,
		clientSecret: clientSecret,
		states:       make(map[string]time.Time),
	}
}

func (s *InstallService) AddRoutes(r chi.Router) {
	r.Get("/slack/install", s.HandleInstall)
	r.Get("/slack/oauth/callback", RestHandler(s.HandleCallback))
}

func (s *InstallService) newState() string {
	state := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for old, issued := range s.states {
		if now.Sub(issued) > stateTTL {
			delete(s.states, old)
		}
	}
	s.states[state] = now

	return state
}

func (s *InstallService) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Since(issued) <= stateTTL
}

func (s *InstallService) HandleInstall(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("client_id", s.clientID)
	q.Set("scope", installScopes)
	q.Set("state", s.newState())

	http.Redirect(w, r, "https://slack.com/oauth/v2/authorize?"+q.Encode(), http.StatusFound)
}

func (s *InstallService) HandleCallback(r *http.Request) (any, error) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || !s.consumeState(state) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid install callback")
	}

	inst, err := s.exchanger.OAuthAccess(r.Context(), s.clientID, s.clientSecret, code)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "installation exchange failed")
	}

	if err := s.installs.Save(r.Context(), inst); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "could not record installation")
	}

	return map[string]string{"team": inst.TeamName, "status": "installed"}, nil
}
