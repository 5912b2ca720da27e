package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bard-backend/internal/bot"
	"bard-backend/internal/dedup"
	"bard-backend/internal/llm"
	"bard-backend/internal/slack"
	"bard-backend/internal/weather"
	"bard-backend/pkg/api"
)

const eventProcessTimeout = 60 * time.Second

const tryAgainMessage = "Error generating AI response. Please try again later."

// SlackGateway is the outbound Slack surface the service needs. Satisfied by
// slack.Client; faked in tests.
type SlackGateway interface {
	PostMessage(ctx context.Context, channel, fallbackText string, blocks []slack.Block) error
	UserRealName(ctx context.Context, userID string) (string, error)
	BotUserID(ctx context.Context) (string, error)
}

// CommandResponse is the synchronous reply body for a slash command.
type CommandResponse struct {
	ResponseType string        `json:"response_type,omitempty"`
	Text         string        `json:"text,omitempty"`
	Blocks       []slack.Block `json:"blocks,omitempty"`
}

type SlackService struct {
	verifier  *slack.Verifier
	dedup     *dedup.Deduplicator
	responder *bot.Responder
	weather   *weather.Client
	client    SlackGateway
	stationID string
}

func NewSlackService(verifier *slack.Verifier, deduplicator *dedup.Deduplicator, responder *bot.Responder, weatherClient *weather.Client, client SlackGateway, stationID string) *SlackService {
	return &SlackService{
		verifier:  verifier,
		dedup:     deduplicator,
		responder: responder,
		weather:   weatherClient,
		client:    client,
		stationID: stationID,
	}
}

func (s *SlackService) AddRoutes(r chi.Router) {
	r.Route("/slack", func(r chi.Router) {
		r.Post("/commands", RestHandler(s.HandleCommand))
		r.Post("/events", RestHandler(s.HandleEvent))
	})
	r.Get("/healthz", RestHandler(func(r *http.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	}))
}

// verifyRequest reads the body and authenticates the request before anything
// else happens. A failed check is a security event: the caller sees a bare
// 401 and no state is touched.
func (s *SlackService) verifyRequest(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}

	err = s.verifier.Verify(body,
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"))
	if err != nil {
		slog.Warn("rejected unauthenticated request", "path", r.URL.Path, "reason", err)
		return nil, CodedError(http.StatusUnauthorized, err)
	}

	return body, nil
}

func (s *SlackService) HandleCommand(r *http.Request) (any, error) {
	body, err := s.verifyRequest(r)
	if err != nil {
		return nil, err
	}

	cmd, err := ParseFormBody[api.SlashCommandRequest](body)
	if err != nil {
		return nil, err
	}

	// Slack retries slash commands on slow responses; the trigger id is
	// unique per invocation and serves as the dedup key.
	if cmd.TriggerID != "" {
		ok, err := s.dedup.ShouldProcess(r.Context(), cmd.TriggerID)
		if err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "something went wrong, please try again")
		}
		if !ok {
			slog.Info("dropping duplicate command delivery", "trigger_id", cmd.TriggerID)
			return nil, nil
		}
	}

	flow, err := bot.RouteCommand(cmd.Command)
	if errors.Is(err, bot.ErrUnknownCommand) {
		return CommandResponse{
			ResponseType: "ephemeral",
			Text:         fmt.Sprintf("Unrecognized command %q.", cmd.Command),
		}, nil
	}

	if flow == bot.FlowWeather {
		return s.weatherCommand(r.Context(), cmd)
	}
	return s.generateCommand(r.Context(), cmd)
}

func (s *SlackService) generateCommand(ctx context.Context, cmd api.SlashCommandRequest) (any, error) {
	// The append must complete even if Slack gives up on the response.
	ctx = context.WithoutCancel(ctx)

	reply, err := s.responder.Respond(ctx, cmd.UserID, cmd.Text, cmd.TriggerID)
	if err != nil {
		return commandErrorResponse(err)
	}

	username, err := s.client.UserRealName(ctx, cmd.UserID)
	if err != nil {
		username = "Unknown User"
	}

	header := fmt.Sprintf("*%s* asked \"_%s_\"", username, cmd.Text)
	return CommandResponse{
		ResponseType: "in_channel",
		Text:         fmt.Sprintf("%s asked %q.\n\nGenerated response:\n%s", username, cmd.Text, reply),
		Blocks:       slack.FormatBlocks(header, reply),
	}, nil
}

func (s *SlackService) weatherCommand(ctx context.Context, cmd api.SlashCommandRequest) (any, error) {
	stationID := s.stationID
	if text := strings.TrimSpace(cmd.Text); text != "" {
		stationID = text
	}

	station, err := s.weather.StationObservation(ctx, stationID)
	if err != nil {
		return CommandResponse{
			ResponseType: "ephemeral",
			Text:         "Could not retrieve weather data from WeatherFlow API.",
		}, nil
	}

	report := weather.FormatReport(station)
	return CommandResponse{
		ResponseType: "in_channel",
		Text:         report,
		Blocks:       slack.FormatBlocks(report),
	}, nil
}

func (s *SlackService) HandleEvent(r *http.Request) (any, error) {
	body, err := s.verifyRequest(r)
	if err != nil {
		return nil, err
	}

	cb, err := ParseJSONBody[api.EventCallback](body)
	if err != nil {
		return nil, err
	}

	switch cb.Type {
	case "url_verification":
		return api.ChallengeResponse{Challenge: cb.Challenge}, nil
	case "event_callback":
	default:
		return nil, nil
	}

	// Ignore the bot's own messages and edits, otherwise replies feed back
	// into the message event stream.
	if cb.Event.BotID != "" || cb.Event.Subtype != "" {
		return nil, nil
	}

	if _, err := bot.RouteEvent(cb.Event.Type); err != nil {
		return nil, nil
	}

	ok, err := s.dedup.ShouldProcess(r.Context(), cb.EventID)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "something went wrong, please try again")
	}
	if !ok {
		slog.Info("dropping duplicate event delivery", "event_id", cb.EventID)
		return nil, nil
	}

	// Ack now; the reply is delivered through chat.postMessage.
	go s.processEvent(cb)

	return nil, nil
}

// processEvent runs after the webhook has been acked, detached from the
// inbound request so a transport disconnect cannot abort the history append.
func (s *SlackService) processEvent(cb api.EventCallback) {
	ctx, cancel := context.WithTimeout(context.Background(), eventProcessTimeout)
	defer cancel()

	jobID := uuid.New().String()
	log := slog.With("job_id", jobID, "event_id", cb.EventID, "user_id", cb.Event.User)

	text := strings.TrimSpace(cb.Event.Text)
	if botID, err := s.client.BotUserID(ctx); err == nil {
		text = strings.TrimSpace(strings.ReplaceAll(text, "<@"+botID+">", ""))
	}

	if text == "" || text == "bard" {
		if err := s.client.PostMessage(ctx, cb.Event.Channel, "Hi :wave:", nil); err != nil {
			log.Error("error posting greeting", "error", err)
		}
		return
	}

	reply, err := s.responder.Respond(ctx, cb.Event.User, text, cb.EventID)
	if err != nil {
		log.Error("error generating event reply", "error", err)
		if err := s.client.PostMessage(ctx, cb.Event.Channel, tryAgainMessage, nil); err != nil {
			log.Error("error posting failure message", "error", err)
		}
		return
	}

	formatted := fmt.Sprintf("<@%s>, %s", cb.Event.User, reply)
	if err := s.client.PostMessage(ctx, cb.Event.Channel, formatted, slack.FormatBlocks(formatted)); err != nil {
		log.Error("error posting reply", "error", err)
	}
}

func commandErrorResponse(err error) (any, error) {
	switch {
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrRejected):
		return CommandResponse{ResponseType: "ephemeral", Text: tryAgainMessage}, nil
	default:
		return nil, CodedErrorf(http.StatusInternalServerError, "something went wrong, please try again")
	}
}
