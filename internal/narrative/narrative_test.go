package narrative_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/delve/internal/narrative"
)

type stubNarrator struct {
	res   narrative.Result
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubNarrator) Narrate(ctx context.Context, _ narrative.Request) (narrative.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return narrative.Result{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func victory() narrative.Request {
	return narrative.Request{Kind: narrative.KindVictory, Subject: "Goblin", Floor: 2, Level: 3, BaseXP: 60, BaseGold: 16}
}

func TestFallback_Deterministic(t *testing.T) {
	a := narrative.Fallback(victory())
	b := narrative.Fallback(victory())
	assert.Equal(t, a, b)
	assert.True(t, a.Fallback)
	assert.Equal(t, 60, a.XP)
	assert.Equal(t, 16, a.Gold)
	assert.Contains(t, a.Text, "Goblin")
}

func TestEnrich_NilNarratorFallsBack(t *testing.T) {
	svc := narrative.NewService(nil, time.Second, zap.NewNop())
	assert.True(t, svc.Enrich(context.Background(), victory()).Fallback)
}

func TestEnrich_ErrorLogsWarnAndFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	svc := narrative.NewService(&stubNarrator{err: errors.New("boom")}, time.Second, zap.New(core))
	res := svc.Enrich(context.Background(), victory())
	assert.True(t, res.Fallback)
	require.Equal(t, 1, logs.FilterMessage("narrative fallback").Len())
}

func TestEnrich_TimeoutFallsBack(t *testing.T) {
	svc := narrative.NewService(&stubNarrator{res: narrative.Result{Text: "late"}, delay: time.Second}, 20*time.Millisecond, zap.NewNop())
	start := time.Now()
	res := svc.Enrich(context.Background(), victory())
	assert.True(t, res.Fallback)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestEnrich_EmptyTextFallsBack(t *testing.T) {
	svc := narrative.NewService(&stubNarrator{res: narrative.Result{XP: 9999}}, time.Second, zap.NewNop())
	res := svc.Enrich(context.Background(), victory())
	assert.True(t, res.Fallback)
	assert.Equal(t, 60, res.XP)
}

func TestEnrich_PassesThroughSuggestions(t *testing.T) {
	stub := &stubNarrator{res: narrative.Result{Text: "The goblin crumples.", XP: 70, Gold: 20}}
	svc := narrative.NewService(stub, time.Second, zap.NewNop())
	res := svc.Enrich(context.Background(), victory())
	assert.False(t, res.Fallback)
	assert.Equal(t, 70, res.XP)
}

func TestEnrich_DeduplicatesConcurrentCalls(t *testing.T) {
	stub := &stubNarrator{res: narrative.Result{Text: "ok"}, delay: 100 * time.Millisecond}
	svc := narrative.NewService(stub, time.Second, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Enrich(context.Background(), victory())
		}()
	}
	wg.Wait()
	assert.Less(t, stub.calls.Load(), int32(5))
}

func TestParseReply(t *testing.T) {
	res, err := narrative.ParseReply("Sure!\n{\"text\": \" The rat squeaks its last. \", \"xp\": 12, \"gold\": 3}\n")
	require.NoError(t, err)
	assert.Equal(t, "The rat squeaks its last.", res.Text)
	assert.Equal(t, 12, res.XP)
	assert.Equal(t, 3, res.Gold)

	_, err = narrative.ParseReply("no json here")
	assert.Error(t, err)
	_, err = narrative.ParseReply("{not json}")
	assert.Error(t, err)
}

func TestPrompt_CarriesContext(t *testing.T) {
	p := narrative.Prompt(victory())
	assert.Contains(t, p, "Event: victory")
	assert.Contains(t, p, "Floor: 2")
}
