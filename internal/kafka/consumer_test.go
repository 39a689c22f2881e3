package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coindash-bot/internal/model"
)

// fakeSubmitter records reconciled reports and can be told to fail.
type fakeSubmitter struct {
	reports []*model.ScoreReport
	err     error
}

func (f *fakeSubmitter) Reconcile(_ context.Context, report *model.ScoreReport) (*model.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reports = append(f.reports, report)
	return &model.Outcome{Accepted: true}, nil
}

// fakeSession implements the group-session surface ConsumeClaim touches.
type fakeSession struct {
	marked []int64
}

func (f *fakeSession) Claims() map[string][]int32               { return nil }
func (f *fakeSession) MemberID() string                         { return "test" }
func (f *fakeSession) GenerationID() int32                      { return 1 }
func (f *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (f *fakeSession) ResetOffset(string, int32, int64, string) {}
func (f *fakeSession) Commit()                                  {}
func (f *fakeSession) Context() context.Context                 { return context.Background() }

func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.marked = append(f.marked, msg.Offset)
}

// fakeClaim feeds canned messages.
type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (f *fakeClaim) Topic() string                            { return "score-events" }
func (f *fakeClaim) Partition() int32                         { return 0 }
func (f *fakeClaim) InitialOffset() int64                     { return 0 }
func (f *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (f *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return f.messages }

func newClaim(values ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Offset: int64(i), Value: []byte(v)}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func newGroupHandler(sub Submitter) *groupHandler {
	return &groupHandler{consumer: &Consumer{submitter: sub}}
}

func TestConsumeClaim_ValidEventReconciledAndMarked(t *testing.T) {
	sub := &fakeSubmitter{}
	session := &fakeSession{}
	claim := newClaim(`{"context_id":"chat-1","player_id":7,"display_name":"alice","score":42}`)

	err := newGroupHandler(sub).ConsumeClaim(session, claim)
	require.NoError(t, err)

	require.Len(t, sub.reports, 1)
	assert.Equal(t, int64(42), sub.reports[0].Score)
	assert.Equal(t, model.SourceStream, sub.reports[0].Source)
	assert.Equal(t, []int64{0}, session.marked)
}

func TestConsumeClaim_MalformedEventsMarkedAndSkipped(t *testing.T) {
	sub := &fakeSubmitter{}
	session := &fakeSession{}
	claim := newClaim(
		`{{not json`,
		`{"context_id":"","player_id":7,"score":1}`,
		`{"context_id":"chat-1","player_id":7,"score":1}`,
	)

	err := newGroupHandler(sub).ConsumeClaim(session, claim)
	require.NoError(t, err)

	// Garbage never redelivers; the valid trailing event still lands.
	require.Len(t, sub.reports, 1)
	assert.Equal(t, []int64{0, 1, 2}, session.marked)
}

func TestConsumeClaim_StoreFailureLeavesEventUncommitted(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("store unavailable")}
	session := &fakeSession{}
	claim := newClaim(`{"context_id":"chat-1","player_id":7,"score":42}`)

	err := newGroupHandler(sub).ConsumeClaim(session, claim)
	require.Error(t, err)

	// The offset stays unmarked so the event redelivers after recovery.
	assert.Empty(t, session.marked)
}
