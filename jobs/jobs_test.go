package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	jobmetrics "github.com/inkwell-cms/inkwell/internal/jobs"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/users"
)

type mailSpy struct {
	sent []Message
	err  error
}

func (m *mailSpy) Send(ctx context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type enqueueSpy struct {
	tasks []*asynq.Task
}

func (e *enqueueSpy) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *enqueueSpy) Close() error { return nil }

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestNotifyWelcomeEnqueuesTask(t *testing.T) {
	spy := &enqueueSpy{}
	client := NewClientWith(spy)

	err := client.NotifyWelcome(context.Background(), users.User{ID: 5, Email: "bea@example.com", FullName: "Bea", Username: "bea", Role: roles.RoleAdministrator})
	require.NoError(t, err)
	require.Len(t, spy.tasks, 1)
	assert.Equal(t, TaskTypeWelcomeEmail, spy.tasks[0].Type())

	var payload WelcomeEmailPayload
	require.NoError(t, json.Unmarshal(spy.tasks[0].Payload(), &payload))
	assert.Equal(t, WelcomeEmailPayload{UserID: 5, To: "bea@example.com", FullName: "Bea", Username: "bea", Role: "Administrator"}, payload)
}

func TestWelcomeEmailJobSendsMail(t *testing.T) {
	mailer := &mailSpy{}
	job := NewWelcomeEmailJob(mailer, "https://cms.example.com/auth/login", nil, testMetrics())
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{UserID: 5, To: "bea@example.com", FullName: "Bea", Username: "bea", Role: "Administrator"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "bea@example.com", msg.To)
	assert.Equal(t, "Welcome to Inkwell", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Bea,")
	assert.Contains(t, msg.Body, "Username: bea")
	assert.Contains(t, msg.Body, "https://cms.example.com/auth/login")
}

func TestWelcomeEmailJobErrors(t *testing.T) {
	mailer := &mailSpy{err: errors.New("relay down")}
	job := NewWelcomeEmailJob(mailer, "", nil, testMetrics())

	task, _ := NewWelcomeEmailTask(WelcomeEmailPayload{UserID: 5, To: "bea@example.com"})
	assert.ErrorContains(t, job.Handle(context.Background(), task), "relay down")

	bad := asynq.NewTask(TaskTypeWelcomeEmail, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	empty, _ := NewWelcomeEmailTask(WelcomeEmailPayload{UserID: 5})
	assert.ErrorIs(t, job.Handle(context.Background(), empty), asynq.SkipRetry)
}

type pruneSpy struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *pruneSpy) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func TestActivityPruneJob(t *testing.T) {
	spy := &pruneSpy{n: 12}
	job := NewActivityPruneJob(spy, nil, testMetrics())
	now := time.Date(2024, 6, 30, 3, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewActivityPruneTask(30)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.AddDate(0, 0, -30), spy.cutoff)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeActivityPrune, nil)))
	assert.Equal(t, now.AddDate(0, 0, -DefaultActivityRetentionDays), spy.cutoff)

	spy.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestSMTPMailerComposesMessage(t *testing.T) {
	var sent *mail.Msg
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 1025, From: "no-reply@inkwell.local"})
	m.clock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		sent = msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "bea@example.com", Subject: "Hi", Body: "line1\nline2"}))
	require.NotNil(t, sent)
	to, err := sent.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"bea@example.com"}, to)
	from, err := sent.GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "no-reply@inkwell.local", from)

	var buf bytes.Buffer
	_, err = sent.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n")
	assert.Contains(t, raw, "line1")
	assert.Contains(t, raw, "line2")

	assert.Error(t, m.Send(context.Background(), Message{To: "x@example.com\r\nBcc: evil@example.com"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "bea@example.com"}), context.Canceled)
	assert.Error(t, NewSMTPMailer(SMTPConfig{}).Send(context.Background(), Message{To: "bea@example.com"}))
}

func TestSMTPMailerWrapsDeliveryErrors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 1025, From: "no-reply@inkwell.local"})
	relayDown := errors.New("connection refused")
	m.send = func(ctx context.Context, msg *mail.Msg) error { return relayDown }

	err := m.Send(context.Background(), Message{To: "bea@example.com", Subject: "Hi", Body: "x"})
	assert.ErrorIs(t, err, relayDown)
	assert.Contains(t, err.Error(), "bea@example.com")
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestJobsHealth(t *testing.T) {
	get := func(h *Handler) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := get(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, rec.Body.String())

	rec = get(NewHandler(inspectorStub{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Archived: 1}}, nil))
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":0,"failed":1}`, rec.Body.String())

	rec = get(NewHandler(inspectorStub{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
