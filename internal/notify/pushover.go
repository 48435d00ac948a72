package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// pushoverSound/priority pairs mirror the original ALERT_LEVELS table:
// higher severity gets a louder, harder-to-miss notification.
var pushoverLevelConfig = map[domain.AlertLevel]struct {
	priority int
	sound    string
}{
	domain.LevelCritical: {priority: 2, sound: "siren"},
	domain.LevelHigh:     {priority: 1, sound: "persistent"},
	domain.LevelMedium:   {priority: 0, sound: "pushover"},
	domain.LevelLow:      {priority: -1, sound: "none"},
}

// PushoverTarget is one configured Pushover recipient.
type PushoverTarget struct {
	Name     string
	UserKey  string
	APIToken string
	MinLevel domain.AlertLevel
}

// PushoverNotifier dispatches alerts to every configured target whose
// MinLevel the alert's level satisfies (§4.K).
type PushoverNotifier struct {
	targets []PushoverTarget
	client  *http.Client
	log     zerolog.Logger
}

func NewPushoverNotifier(targets []PushoverTarget, log zerolog.Logger) *PushoverNotifier {
	return &PushoverNotifier{
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "pushover_notifier").Logger(),
	}
}

func (n *PushoverNotifier) Notify(ctx context.Context, alert Alert) error {
	if len(n.targets) == 0 {
		n.log.Warn().Msg("no pushover targets configured, skipping notification")
		return nil
	}

	var eligible []PushoverTarget
	for _, t := range n.targets {
		if shouldSendToTarget(alert.Level, t.MinLevel) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		n.log.Info().Str("level", string(alert.Level)).Msg("no targets meet minimum level for this alert")
		return nil
	}

	var lastErr error
	sent := 0
	for _, t := range eligible {
		if err := n.sendOne(ctx, t, alert); err != nil {
			n.log.Error().Err(err).Str("target", t.Name).Msg("pushover send failed")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return apperror.Wrap(apperror.KindNotifierFailed, "pushover delivery failed for all targets", lastErr)
	}
	return nil
}

func (n *PushoverNotifier) sendOne(ctx context.Context, t PushoverTarget, alert Alert) error {
	cfg, ok := pushoverLevelConfig[alert.Level]
	if !ok {
		cfg = pushoverLevelConfig[domain.LevelMedium]
	}

	form := url.Values{
		"token":    {t.APIToken},
		"user":     {t.UserKey},
		"message":  {alert.Message},
		"title":    {alert.Title},
		"priority": {fmt.Sprintf("%d", cfg.priority)},
		"sound":    {cfg.sound},
	}
	if alert.Level == domain.LevelCritical {
		form.Set("retry", "30")
		form.Set("expire", "3600")
	}
	if alert.URL != "" {
		form.Set("url", alert.URL)
		form.Set("url_title", "View Dashboard")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushoverEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperror.Wrap(apperror.KindNotifierFailed, "build pushover request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindNotifierFailed, "pushover request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperror.New(apperror.KindNotifierFailed, fmt.Sprintf("pushover returned status %d", resp.StatusCode))
	}
	return nil
}

// FormatAlertMessage renders a human-readable body for a triggered
// alert, mirroring the original's format_alert_message.
func FormatAlertMessage(monitorName string, currentValue float64, unit string, condition string) string {
	valueStr := fmt.Sprintf("%.2f", currentValue)
	if unit != "" {
		valueStr += " " + unit
	}
	return fmt.Sprintf("Current: %s\nCondition: %s", valueStr, condition)
}
