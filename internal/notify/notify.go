// Package notify publishes object lifecycle events to EventBridge so that
// alarms and downstream consumers can react to quarantines and promotions.
//
// Publication is best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every event published here.
const Source = "datalake.ingestion"

// Detail types.
const (
	ObjectStaged      = "ObjectStaged"
	ObjectQuarantined = "ObjectQuarantined"
	ObjectPromoted    = "ObjectPromoted"
	PartitionWritten  = "PartitionWritten"
)

// Event is the detail payload of a lifecycle event.
type Event struct {
	Type     string    `json:"-"`
	Bucket   string    `json:"bucket"`
	Key      string    `json:"key"`
	FromKey  string    `json:"fromKey,omitempty"`
	SourceID string    `json:"sourceId,omitempty"`
	Stage    string    `json:"stage"`
	Reason   string    `json:"reason,omitempty"`
	Records  int       `json:"records,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher publishes lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events. Used when no event bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// PutEventsAPI is the subset of *eventbridge.Client used by EventBridgePublisher.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher sends events to one event bus.
type EventBridgePublisher struct {
	client PutEventsAPI
	bus    string
}

// Compile-time interface check.
var _ Publisher = (*EventBridgePublisher)(nil)

// NewEventBridgePublisher returns a publisher for bus (name or ARN).
func NewEventBridgePublisher(client PutEventsAPI, bus string) *EventBridgePublisher {
	return &EventBridgePublisher{client: client, bus: bus}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	detail, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.bus),
			Source:       aws.String(Source),
			DetailType:   aws.String(e.Type),
			Detail:       aws.String(string(detail)),
			Resources:    []string{fmt.Sprintf("arn:aws:s3:::%s/%s", e.Bucket, e.Key)},
		}},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("type", e.Type).Str("key", e.Key).Msg("Lifecycle event published")
	return nil
}

// Best publishes e and logs, rather than returns, any failure.
func Best(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("type", e.Type).Str("key", e.Key).Msg("Failed to publish lifecycle event")
	}
}
