// Package consumer triggers single-user synchronizations from requests published on Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"db-user-sync/internal/sync/domain"
)

// Request asks for the synchronization of one username of a realm. It is the JSON message value.
type Request struct {
	Realm    string `json:"realm"`
	Username string `json:"username"`
}

// ErrInvalidRequest is returned for a message that does not decode to a complete Request.
var ErrInvalidRequest = errors.New("invalid sync request")

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// UserSyncer synchronizes one username.
type UserSyncer interface {
	SyncUsername(ctx context.Context, p *domain.Provider, username string) (domain.Result, error)
}

// ProviderLookup resolves the provider of a realm name.
type ProviderLookup interface {
	ForRealm(realm string) (*domain.Provider, error)
}

// NewKafkaReader returns a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
}

// Consumer reads sync requests and runs them one at a time.
type Consumer struct {
	reader    Reader
	providers ProviderLookup
	syncer    UserSyncer
}

// New returns a consumer.
func New(reader Reader, providers ProviderLookup, syncer UserSyncer) *Consumer {
	return &Consumer{reader: reader, providers: providers, syncer: syncer}
}

// Run consumes until ctx is done. Every fetched message is committed after handling, including
// the ones that failed; failures are logged.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("consumer: kafka read error: %v", err)
			continue
		}
		if _, err := c.Handle(ctx, msg); err != nil {
			log.Printf("consumer: offset %d: %v", msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("consumer: commit offset %d: %v", msg.Offset, err)
		}
	}
}

// Handle decodes msg and synchronizes the requested username.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (domain.Result, error) {
	var req Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Realm = strings.TrimSpace(req.Realm)
	req.Username = strings.TrimSpace(req.Username)
	if req.Realm == "" || req.Username == "" {
		return domain.Result{}, fmt.Errorf("%w: realm and username are required", ErrInvalidRequest)
	}
	p, err := c.providers.ForRealm(req.Realm)
	if err != nil {
		return domain.Result{}, err
	}
	res, err := c.syncer.SyncUsername(ctx, p, req.Username)
	if err != nil {
		return domain.Result{}, err
	}
	if res.Total() == 0 {
		return res, fmt.Errorf("%w: %s", domain.ErrUserNotFound, req.Username)
	}
	if res.Failed > 0 {
		return res, fmt.Errorf("%w: %s", domain.ErrUserSyncFailed, req.Username)
	}
	log.Printf("consumer: %s - %s synchronized: %s", req.Realm, req.Username, res)
	return res, nil
}
