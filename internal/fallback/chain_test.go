package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	attempts map[string]int
	failures map[string]int
	defaults int
}

func newRecorded() *recorded {
	return &recorded{attempts: map[string]int{}, failures: map[string]int{}}
}

func (r *recorded) ObserveAttempt(_, provider string, err error) {
	r.attempts[provider]++
	if err != nil {
		r.failures[provider]++
	}
}

func (r *recorded) ObserveDefault(string) { r.defaults++ }

func failing(name string, calls *[]string) Provider[int] {
	return Provider[int]{Name: name, Fetch: func(context.Context) (int, error) {
		*calls = append(*calls, name)
		return 0, errors.New(name + " down")
	}}
}

func returning(name string, v int, calls *[]string) Provider[int] {
	return Provider[int]{Name: name, Fetch: func(context.Context) (int, error) {
		*calls = append(*calls, name)
		return v, nil
	}}
}

func TestChainExecute(t *testing.T) {
	tests := []struct {
		name          string
		build         func(calls *[]string) []Provider[int]
		wantValue     int
		wantSource    string
		wantDefaulted bool
		wantCalls     []string
	}{
		{
			name: "first provider wins",
			build: func(calls *[]string) []Provider[int] {
				return []Provider[int]{returning("a", 1, calls), returning("b", 2, calls)}
			},
			wantValue:  1,
			wantSource: "a",
			wantCalls:  []string{"a"},
		},
		{
			name: "fail fail succeed",
			build: func(calls *[]string) []Provider[int] {
				return []Provider[int]{failing("a", calls), failing("b", calls), returning("c", 7, calls)}
			},
			wantValue:  7,
			wantSource: "c",
			wantCalls:  []string{"a", "b", "c"},
		},
		{
			name: "all fail returns default",
			build: func(calls *[]string) []Provider[int] {
				return []Provider[int]{failing("a", calls), failing("b", calls)}
			},
			wantValue:     42,
			wantSource:    DefaultSource,
			wantDefaulted: true,
			wantCalls:     []string{"a", "b"},
		},
		{
			name: "invalid value skipped",
			build: func(calls *[]string) []Provider[int] {
				return []Provider[int]{returning("zero", 0, calls), returning("b", 5, calls)}
			},
			wantValue:  5,
			wantSource: "b",
			wantCalls:  []string{"zero", "b"},
		},
		{
			name:          "no providers",
			build:         func(*[]string) []Provider[int] { return nil },
			wantValue:     42,
			wantSource:    DefaultSource,
			wantDefaulted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			chain := New("test", 42, tt.build(&calls), WithValidator(func(v int) bool { return v != 0 }))

			res := chain.Execute(context.Background())

			assert.Equal(t, tt.wantValue, res.Value)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantDefaulted, res.Defaulted)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestChainRecoversPanics(t *testing.T) {
	var calls []string
	providers := []Provider[int]{
		{Name: "boom", Fetch: func(context.Context) (int, error) { panic("bad payload") }},
		returning("ok", 3, &calls),
	}

	res := New("panic", 0, providers).Execute(context.Background())

	assert.Equal(t, 3, res.Value)
	assert.Equal(t, "ok", res.Source)
}

func TestChainRecordsOutcomes(t *testing.T) {
	var calls []string
	rec := newRecorded()
	chain := New("rec", -1, []Provider[int]{failing("a", &calls), failing("b", &calls)}, WithRecorder[int](rec))

	res := chain.Execute(context.Background())

	require.True(t, res.Defaulted)
	assert.Equal(t, 1, rec.attempts["a"])
	assert.Equal(t, 1, rec.failures["b"])
	assert.Equal(t, 1, rec.defaults)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New("cancel", 9, []Provider[int]{returning("a", 1, &calls)}).Execute(ctx)

	assert.True(t, res.Defaulted)
	assert.Equal(t, 9, res.Value)
	assert.Empty(t, calls)
}
