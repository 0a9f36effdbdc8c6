package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/task"
)

const RemoteDeliveryTaskType = "remote-delivery-retry"

var (
	// ErrPermanentFailure is returned by a Deliverer when retrying cannot succeed, for example for an
	// unknown recipient.
	ErrPermanentFailure = errors.New("permanent delivery failure")

	ErrRetriesExhausted = errors.New("delivery retries exhausted")
)

// Deliverer sends a mail to a remote server
type Deliverer interface {
	Deliver(ctx context.Context, m *Mail) error
}

type DeliverFunc func(ctx context.Context, m *Mail) error

func (f DeliverFunc) Deliver(ctx context.Context, m *Mail) error {
	return f(ctx, m)
}

type DeliveryInformation struct {
	MailKey   string    `json:"mail_key"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

func (i *DeliveryInformation) Type() string {
	return RemoteDeliveryTaskType
}

func (i *DeliveryInformation) Timestamp() time.Time {
	return i.At
}

// RemoteDeliveryTask retries delivering a mail a bounded number of times. Once the retries are exhausted
// the task fails and the mail is left in its error repository.
type RemoteDeliveryTask struct {
	MailKey       string        `json:"mail_key"`
	MaxRetries    uint64        `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`

	repo      Repository
	deliverer Deliverer

	mu   sync.Mutex
	info DeliveryInformation
}

var (
	_ task.Task            = (*RemoteDeliveryTask)(nil)
	_ task.DetailsProvider = (*RemoteDeliveryTask)(nil)
)

func NewRemoteDeliveryTask(mailKey string, repo Repository, deliverer Deliverer, maxRetries uint64, retryInterval time.Duration) *RemoteDeliveryTask {
	return &RemoteDeliveryTask{
		MailKey:       mailKey,
		MaxRetries:    maxRetries,
		RetryInterval: retryInterval,
		repo:          repo,
		deliverer:     deliverer,
		info:          DeliveryInformation{MailKey: mailKey},
	}
}

func (t *RemoteDeliveryTask) Type() string {
	return RemoteDeliveryTaskType
}

func (t *RemoteDeliveryTask) Run(ctx context.Context) (core.Result, error) {
	if t.repo == nil || t.deliverer == nil {
		return "", errors.New("remote delivery is not available on this node")
	}

	m, err := t.repo.Retrieve(ctx, t.MailKey)
	if err != nil {
		return "", fmt.Errorf("retrieving mail %q: %w", t.MailKey, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(t.RetryInterval), t.MaxRetries), ctx)

	err = backoff.Retry(func() error {
		err := t.deliverer.Deliver(ctx, m)
		t.attempted(err)
		task.ReportProgress(ctx, t.Details())

		if errors.Is(err, ErrPermanentFailure) {
			return backoff.Permanent(err)
		}

		return err
	}, b)

	switch {
	case err == nil:
		return core.ResultCompleted, t.repo.Remove(ctx, t.MailKey)

	case ctx.Err() != nil:
		return "", task.ErrCancelled

	case errors.Is(err, ErrPermanentFailure):
		return "", err

	default:
		return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, t.attempts(), err)
	}
}

func (t *RemoteDeliveryTask) attempted(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.info.Attempts++
	t.info.At = time.Now()
	t.info.LastError = ""
	if err != nil {
		t.info.LastError = err.Error()
	}
}

func (t *RemoteDeliveryTask) attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.info.Attempts
}

func (t *RemoteDeliveryTask) Details() task.AdditionalInformation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.info.Attempts == 0 {
		return nil
	}

	info := t.info
	return &info
}
