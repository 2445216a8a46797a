package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

type fakeEventBridge struct {
	input  *eventbridge.PutEventsInput
	output *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventBridgePublisher_Publish(t *testing.T) {
	fake := &fakeEventBridge{}
	p := NewEventBridgePublisher(fake, "datalake-bus")

	err := p.Publish(context.Background(), Event{
		Type:     ObjectQuarantined,
		Bucket:   "lake",
		Key:      "Bronze/Rejected/x_data.json",
		FromKey:  "Bronze/Delivered/BADSRC/data.json",
		SourceID: "BADSRC",
		Stage:    "Rejected",
		Reason:   "unknown source id",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := fake.input.Entries[0]
	if aws.ToString(entry.EventBusName) != "datalake-bus" || aws.ToString(entry.Source) != Source {
		t.Errorf("unexpected bus/source: %s %s", aws.ToString(entry.EventBusName), aws.ToString(entry.Source))
	}
	if aws.ToString(entry.DetailType) != ObjectQuarantined {
		t.Errorf("DetailType = %s", aws.ToString(entry.DetailType))
	}
	var detail map[string]interface{}
	if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
		t.Fatalf("detail is not JSON: %v", err)
	}
	if detail["sourceId"] != "BADSRC" || detail["fromKey"] != "Bronze/Delivered/BADSRC/data.json" {
		t.Errorf("unexpected detail: %v", detail)
	}
	if _, ok := detail["at"]; !ok {
		t.Error("expected timestamp to be filled in")
	}
}

func TestEventBridgePublisher_FailedEntry(t *testing.T) {
	fake := &fakeEventBridge{output: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{{
			ErrorCode:    aws.String("InternalFailure"),
			ErrorMessage: aws.String("boom"),
		}},
	}}
	p := NewEventBridgePublisher(fake, "bus")
	if err := p.Publish(context.Background(), Event{Type: ObjectStaged}); err == nil {
		t.Error("expected failed entry to surface as error")
	}
}

func TestBest_SwallowsErrors(t *testing.T) {
	fake := &fakeEventBridge{err: errors.New("throttled")}
	Best(context.Background(), NewEventBridgePublisher(fake, "bus"), Event{Type: ObjectPromoted})
	Best(context.Background(), nil, Event{Type: ObjectPromoted})
	if err := (Nop{}).Publish(context.Background(), Event{}); err != nil {
		t.Errorf("Nop returned %v", err)
	}
}
