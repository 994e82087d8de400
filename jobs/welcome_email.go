package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/inkwell-cms/inkwell/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const welcomeSubject = "Welcome to Inkwell"

var welcomeBody = template.Must(template.New("welcome").Parse(`Hello {{.FullName}},

An Inkwell account has been created for you.

  Username: {{.Username}}
  Role:     {{.Role}}
{{if .LoginURL}}
Sign in at {{.LoginURL}} with the password you were given and change it from
your profile page.
{{end}}
-- 
Inkwell
`))

// WelcomeEmailJob sends the welcome mail for new accounts.
type WelcomeEmailJob struct {
	Mailer   Mailer
	LoginURL string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewWelcomeEmailJob wires dependencies for the welcome mail handler.
func NewWelcomeEmailJob(mailer Mailer, loginURL string, logger *slog.Logger, metrics *jobmetrics.Metrics) *WelcomeEmailJob {
	return &WelcomeEmailJob{Mailer: mailer, LoginURL: loginURL, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeWelcomeEmail tasks.
func (j *WelcomeEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("welcome email: handler not configured")
	}
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.To) == "" {
		j.logger().Warn("welcome email without recipient", slog.Int64("user_id", payload.UserID))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeWelcomeEmail)
	body, err := j.render(payload)
	if err != nil {
		return tracker.End(err)
	}
	err = j.Mailer.Send(ctx, Message{To: payload.To, Subject: welcomeSubject, Body: body})
	j.metrics().ObserveEmail("welcome", err == nil)
	if err != nil {
		j.logger().Error("send welcome email", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("welcome email sent", slog.Int64("user_id", payload.UserID))
	return tracker.End(nil)
}

func (j *WelcomeEmailJob) render(p WelcomeEmailPayload) (string, error) {
	var buf bytes.Buffer
	err := welcomeBody.Execute(&buf, struct {
		WelcomeEmailPayload
		LoginURL string
	}{p, j.LoginURL})
	return buf.String(), err
}

func (j *WelcomeEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *WelcomeEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
