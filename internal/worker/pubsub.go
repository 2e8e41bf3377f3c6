package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/aqicast/aqicast/internal/airquality"
	"github.com/aqicast/aqicast/internal/forecast"
)

// Job types carried in JobMessage.JobType.
const (
	JobForecastSnapshot = "forecast_snapshot"
	JobModelReload      = "model_reload"
	JobHealthCheck      = "health_check"
)

// Job errors.
var (
	ErrUnknownJob        = errors.New("unknown job type")
	ErrHealthCheckFailed = errors.New("health check failed")
)

// JobMessage is the payload of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Snapshot asks a model_reload job to publish a fresh snapshot once the
	// new bundle is active.
	Snapshot bool `json:"snapshot,omitempty"`
}

// ReloadFunc swaps in a freshly loaded model bundle.
type ReloadFunc func(ctx context.Context) error

// Dispatcher executes worker jobs. It is transport agnostic; PubSubHandler
// feeds it from a subscription.
type Dispatcher struct {
	snapshotJob *SnapshotJob
	reload      ReloadFunc
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. reload may be nil when no model source
// is configured.
func NewDispatcher(job *SnapshotJob, reload ReloadFunc, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{snapshotJob: job, reload: reload, logger: logger}
}

// Handle decodes a message payload and dispatches it. The job type is
// returned for logging and is empty when the payload cannot be decoded.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) (string, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("parse job message: %w", err)
	}
	return msg.JobType, d.Dispatch(ctx, msg)
}

// Dispatch runs one job.
func (d *Dispatcher) Dispatch(ctx context.Context, msg JobMessage) error {
	switch msg.JobType {
	case JobForecastSnapshot:
		_, err := d.snapshotJob.Run(ctx)
		return err
	case JobModelReload:
		return d.handleModelReload(ctx, msg)
	case JobHealthCheck:
		return d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) handleModelReload(ctx context.Context, msg JobMessage) error {
	if d.reload == nil {
		d.logger.Warn().Msg("model reload requested but no model source is configured")
		return nil
	}
	if err := d.reload(ctx); err != nil {
		return fmt.Errorf("reload model: %w", err)
	}
	if msg.Snapshot {
		if _, err := d.snapshotJob.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if d.snapshotJob.forecasts == nil {
		return ErrNoForecaster
	}

	// A single noiseless prediction proves history, model and converter.
	current, err := d.snapshotJob.forecasts.Current(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHealthCheckFailed, err)
	}
	if !current.Result.Category.Valid() || current.Result.AQI < 0 || current.Result.AQI > airquality.MaxAQI {
		return fmt.Errorf("%w: implausible AQI %.1f", ErrHealthCheckFailed, current.Result.AQI)
	}

	d.logger.Debug().
		Float64("aqi", current.Result.AQI).
		Str("method", string(current.Provenance)).
		Msg("health check passed")
	return nil
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Snapshot runs are serialized, so a small backlog is enough.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	jobType, err := h.dispatcher.Handle(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", jobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	case err != nil && jobType == "":
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Ack() // Redelivery cannot fix a malformed payload
		return
	case err != nil:
		logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", jobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

// compile-time check that the forecast service can back a snapshot job.
var _ ForecastSource = (*forecast.Service)(nil)
