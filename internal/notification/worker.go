// Package notification sends web push alerts when an animal leaves its parcel.
package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"livestock-collar-backend/internal/geofence"
	"livestock-collar-backend/internal/model"
	"livestock-collar-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// BreachAlert is the push payload for an animal outside its parcel.
type BreachAlert struct {
	Type       string    `json:"type"`
	AnimalID   int64     `json:"animalId"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recordedAt"`
}

// WorkerPool re-evaluates animals whose position changed and alerts the
// subscribers of their field. An animal is alerted at most once per cooldown
// while it stays outside.
type WorkerPool struct {
	size      int
	jobs      chan int64
	store     store.Store
	evaluator *geofence.Evaluator
	webpush   *webpush.Options
	sender    NotificationSender
	cooldown  *cache.Cache
	log       *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, evaluator *geofence.Evaluator, webpushOptions *webpush.Options, cooldown time.Duration, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:      size,
		jobs:      make(chan int64, size*16),
		store:     s,
		evaluator: evaluator,
		webpush:   webpushOptions,
		sender:    &WebPushSender{},
		cooldown:  cache.New(cooldown, 2*cooldown),
		log:       log.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case animalID := <-wp.jobs:
			wp.evaluateAnimal(ctx, animalID)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues an animal for evaluation. It never blocks; when the queue is
// full the job is dropped, the next position will queue it again.
func (wp *WorkerPool) Dispatch(animalID int64) {
	select {
	case wp.jobs <- animalID:
	default:
		wp.log.Warn("alert queue full, dropping job", zap.Int64("animal_id", animalID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

func (wp *WorkerPool) evaluateAnimal(ctx context.Context, animalID int64) {
	subject, err := wp.store.AnimalSubject(ctx, animalID)
	if err != nil {
		wp.log.Error("failed to load animal for geofence check", zap.Int64("animal_id", animalID), zap.Error(err))
		return
	}

	key := strconv.FormatInt(animalID, 10)
	if wp.evaluator.Classify(*subject) != geofence.Outside {
		wp.cooldown.Delete(key)
		return
	}
	if _, alerted := wp.cooldown.Get(key); alerted {
		return
	}
	wp.cooldown.SetDefault(key, struct{}{})

	if subject.FieldID == nil {
		return
	}
	subscriptions, err := wp.store.SubscriptionsForField(ctx, *subject.FieldID)
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.Int64("field_id", *subject.FieldID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(BreachAlert{
		Type:       "geofence_breach",
		AnimalID:   subject.AnimalID,
		Identifier: subject.Identifier,
		Name:       subject.Name,
		Lat:        subject.Position.Lat,
		Lon:        subject.Position.Lon,
		RecordedAt: subject.Position.RecordedAt,
	})
	if err != nil {
		wp.log.Error("failed to encode alert", zap.Error(err))
		return
	}

	wp.log.Info("sending geofence breach alerts",
		zap.Int64("animal_id", animalID),
		zap.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
