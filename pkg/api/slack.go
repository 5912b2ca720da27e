package api

// SlashCommandRequest is the form-encoded payload Slack posts for a slash
// command invocation. Only the fields the bot uses are decoded.
type SlashCommandRequest struct {
	Command     string `schema:"command"`
	Text        string `schema:"text"`
	UserID      string `schema:"user_id"`
	UserName    string `schema:"user_name"`
	TeamID      string `schema:"team_id"`
	ChannelID   string `schema:"channel_id"`
	TriggerID   string `schema:"trigger_id"`
	ResponseURL string `schema:"response_url"`
}

// EventCallback is the JSON envelope for event-subscription deliveries.
type EventCallback struct {
	Type      string     `json:"type"`
	Token     string     `json:"token"`
	Challenge string     `json:"challenge"`
	TeamID    string     `json:"team_id"`
	EventID   string     `json:"event_id"`
	EventTime int64      `json:"event_time"`
	Event     InnerEvent `json:"event"`
}

type InnerEvent struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	BotID   string `json:"bot_id"`
	Subtype string `json:"subtype"`
}

type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}
