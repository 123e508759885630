package app

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlasvoice/atlas/internal/capture"
	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/settings"
	"github.com/atlasvoice/atlas/pkg/speechio"
	"github.com/atlasvoice/atlas/pkg/speechio/mock"
)

// stubStore serves fixed settings without persistence.
type stubStore struct {
	v settings.VoiceSettings
}

func (s *stubStore) Load(context.Context) (settings.VoiceSettings, error) { return s.v, nil }
func (s *stubStore) Save(_ context.Context, v settings.VoiceSettings) error {
	s.v = v
	return nil
}

type rig struct {
	orch *Orchestrator
	in   *mock.Input
	out  *mock.Output
	ctx  context.Context
}

func newRig(t *testing.T, cfg Config, store settings.Store, register func(*dispatch.Dispatcher)) *rig {
	t.Helper()

	in := mock.NewInput()
	out := mock.NewOutput()
	dp := dispatch.New(dispatch.WithTimeout(200 * time.Millisecond))
	if register != nil {
		register(dp)
	}

	orch := New(in, out, dp, store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &rig{orch: orch, in: in, out: out, ctx: ctx}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func (r *rig) status(t *testing.T) Status {
	t.Helper()
	st, err := r.orch.Status(r.ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return st
}

func (r *rig) emitFinal(text string) {
	r.in.Emit(speechio.RecognitionEvent{
		Text:       text,
		IsFinal:    true,
		Confidence: 0.95,
		Timestamp:  time.Now(),
	})
}

func TestWeatherUtteranceEndToEnd(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(_ context.Context, in intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				if got, _ := in.Entity("location"); got != "Paris" {
					t.Errorf("location: want %q, got %q", "Paris", got)
				}
				return dispatch.Result{SpokenText: "It's sunny in Paris."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	r.emitFinal("what's the weather in Paris")

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected one rendered response")
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls: want 1, got %d", got)
	}
	if got := r.out.Rendered()[0]; got != "It's sunny in Paris." {
		t.Errorf("spoken: want %q, got %q", "It's sunny in Paris.", got)
	}
}

func TestCaptureSuspendedWhileSpeaking(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(context.Context, intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				return dispatch.Result{SpokenText: "Sunny."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	r.emitFinal("what's the weather in Paris")

	// While rendering, capture must be suspended, never listening.
	eventually(t, func() bool {
		st := r.status(t)
		return st.Speaking && st.CaptureState == "suspended"
	}, "expected suspended capture while speaking")

	// A transcript arriving mid-render is the assistant's own voice: dropped.
	r.emitFinal("what's the weather in Paris")
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls during suspension: want 1, got %d", got)
	}

	// Draining the queue resumes listening.
	r.out.FinishRender(r.out.LastRenderID())
	eventually(t, func() bool {
		st := r.status(t)
		return !st.Speaking && st.CaptureState == "listening"
	}, "expected listening after queue drained")
}

func TestInterimEventsNeverDispatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(context.Context, intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				return dispatch.Result{SpokenText: "Sunny."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	r.in.Emit(speechio.RecognitionEvent{Text: "what's the weather in Paris", IsFinal: false, Confidence: 0.95})
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("handler calls from interim event: want 0, got %d", got)
	}
	if got := len(r.out.Rendered()); got != 0 {
		t.Errorf("renders from interim event: want 0, got %d", got)
	}
}

func TestSlotPromptWithoutDispatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Reminder, dispatch.HandlerFunc(
			func(context.Context, intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				return dispatch.Result{SpokenText: "Done."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	r.emitFinal("remind me")

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected a follow-up prompt")
	if got := calls.Load(); got != 0 {
		t.Errorf("handler calls before slots filled: want 0, got %d", got)
	}
	if st := r.status(t); !st.DialogOpen {
		t.Error("expected an open dialog turn")
	}
}

func TestDisableVoiceModeIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	if err := r.orch.DisableVoiceMode(r.ctx); err != nil {
		t.Fatalf("DisableVoiceMode: %v", err)
	}
	first := r.status(t)
	if err := r.orch.DisableVoiceMode(r.ctx); err != nil {
		t.Fatalf("second DisableVoiceMode: %v", err)
	}
	second := r.status(t)

	if first != second {
		t.Errorf("disable is not idempotent: first %+v, second %+v", first, second)
	}
	if second.VoiceEnabled || second.CaptureState != "idle" || second.QueueLen != 0 || second.Speaking {
		t.Errorf("expected idle session with empty queue, got %+v", second)
	}
}

func TestStaleHandlerResultDiscardedAfterDisable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(ctx context.Context, _ intent.Intent) (dispatch.Result, error) {
				select {
				case <-release:
				case <-ctx.Done():
				}
				return dispatch.Result{SpokenText: "Too late."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	r.emitFinal("what's the weather in Paris")
	time.Sleep(20 * time.Millisecond)

	if err := r.orch.DisableVoiceMode(r.ctx); err != nil {
		t.Fatalf("DisableVoiceMode: %v", err)
	}
	close(release)

	time.Sleep(100 * time.Millisecond)
	if got := len(r.out.Rendered()); got != 0 {
		t.Errorf("renders after disable: want 0, got %d (%v)", got, r.out.Rendered())
	}
}

func TestHandlerTimeoutThenListeningAgain(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(ctx context.Context, _ intent.Intent) (dispatch.Result, error) {
				<-ctx.Done()
				return dispatch.Result{}, ctx.Err()
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	r.emitFinal("what's the weather in Paris")

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected a timeout apology")
	if got := r.out.Rendered()[0]; !strings.Contains(got, "took too long") {
		t.Errorf("unexpected timeout response: %q", got)
	}

	r.out.FinishRender(r.out.LastRenderID())
	eventually(t, func() bool {
		return r.status(t).CaptureState == "listening"
	}, "expected capture to resume after timeout response")
}

func TestWakeWordModeIgnoresUntriggered(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	store := &stubStore{v: func() settings.VoiceSettings {
		v := settings.Defaults()
		v.WakeWordEnabled = true
		return v
	}()}

	r := newRig(t, Config{
		Mode:     capture.ModeWakeWord,
		WakeWord: "hey atlas",
	}, store, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(context.Context, intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				return dispatch.Result{SpokenText: "Sunny."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	// No trigger phrase: no intent, no state change, nothing spoken.
	r.emitFinal("what's the weather in Paris")
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("handler calls without trigger: want 0, got %d", got)
	}
	if st := r.status(t); st.CaptureState != "listening" {
		t.Errorf("state: want listening, got %s", st.CaptureState)
	}

	// With the trigger the same command goes through.
	r.emitFinal("hey atlas what's the weather in Paris")
	eventually(t, func() bool { return calls.Load() == 1 }, "expected dispatch after trigger")
}

func TestSettingsApplyOnNextSession(t *testing.T) {
	t.Parallel()

	store := &stubStore{v: settings.Defaults()}
	r := newRig(t, Config{Mode: capture.ModeContinuous}, store, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	lang := "de-DE"
	if err := r.orch.UpdateSettings(r.ctx, settings.Patch{Language: &lang}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got := store.v.Language; got != "de-DE" {
		t.Errorf("persisted language: want %q, got %q", "de-DE", got)
	}

	// The running session keeps its start-time language.
	if got := r.in.StartCalls[0].Cfg.Language; got != "en-US" {
		t.Errorf("active session language: want %q, got %q", "en-US", got)
	}

	// Restarting picks up the new language.
	if err := r.orch.DisableVoiceMode(r.ctx); err != nil {
		t.Fatalf("DisableVoiceMode: %v", err)
	}
	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("re-EnableVoiceMode: %v", err)
	}
	if got := r.in.StartCalls[1].Cfg.Language; got != "de-DE" {
		t.Errorf("new session language: want %q, got %q", "de-DE", got)
	}
}

func TestMultiCommandFinalRunsEachSegment(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, func(dp *dispatch.Dispatcher) {
		_ = dp.Register(intent.Weather, dispatch.HandlerFunc(
			func(context.Context, intent.Intent) (dispatch.Result, error) {
				calls.Add(1)
				return dispatch.Result{SpokenText: "Sunny."}, nil
			}))
	})

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	// One final packing two commands: each segment dispatches on its own.
	r.emitFinal("what's the weather in Paris? what's the weather in Berlin")

	eventually(t, func() bool { return len(r.out.Rendered()) == 2 }, "expected two rendered responses")
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls: want 2, got %d", got)
	}
}

func TestIntentThresholdReachesSlotResolver(t *testing.T) {
	t.Parallel()

	// With the threshold above the classifier's confidence the under-specified
	// reminder must skip slot filling and fall through to the dispatcher.
	r := newRig(t, Config{Mode: capture.ModeContinuous, IntentThreshold: 0.99}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}

	r.emitFinal("remind me to water the plants")

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected one rendered response")
	if got, want := r.out.Rendered()[0], "I understood what you asked, but I can't help with that yet."; got != want {
		t.Errorf("spoken: want %q, got %q", want, got)
	}
	if r.status(t).DialogOpen {
		t.Error("no dialog turn should open below the configured threshold")
	}
}

func TestReconfigureAppliesOnNextSession(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	if err := r.orch.Reconfigure(r.ctx, Config{Mode: capture.ModeManual}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	// The running session keeps the mode it started with.
	if got := r.in.StartCalls[0].Cfg.Continuous; !got {
		t.Error("active session should still be continuous")
	}

	if err := r.orch.DisableVoiceMode(r.ctx); err != nil {
		t.Fatalf("DisableVoiceMode: %v", err)
	}
	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("re-EnableVoiceMode: %v", err)
	}
	if got := r.in.StartCalls[1].Cfg.Continuous; got {
		t.Error("new session should be manual after reconfigure")
	}
}

func TestUnknownUtteranceSpeaksFallback(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	r.emitFinal("florble the wibble")

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected a fallback response")
	if got := r.out.Rendered()[0]; !strings.Contains(got, "didn't understand") {
		t.Errorf("unexpected fallback: %q", got)
	}
}

func TestFatalCaptureErrorAnnouncedOnce(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	r.in.EmitError(speechio.InputError{Kind: speechio.ErrNotAllowed, Message: "permission denied"})

	eventually(t, func() bool { return len(r.out.Rendered()) == 1 }, "expected a spoken apology")
	st := r.status(t)
	if st.VoiceEnabled {
		t.Error("voice mode must end on fatal error")
	}
	if st.CaptureState != "error_fatal" {
		t.Errorf("state: want error_fatal, got %s", st.CaptureState)
	}
	if st.LastError == "" {
		t.Error("expected a structured error in status")
	}
}

func TestEnableVoiceModeIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{Mode: capture.ModeContinuous}, nil, nil)

	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("EnableVoiceMode: %v", err)
	}
	id := r.status(t).SessionID
	if err := r.orch.EnableVoiceMode(r.ctx); err != nil {
		t.Fatalf("second EnableVoiceMode: %v", err)
	}
	if got := r.status(t).SessionID; got != id {
		t.Error("second enable must not start a new session")
	}
	if got := r.in.StartCount(); got != 1 {
		t.Errorf("provider starts: want 1, got %d", got)
	}
}
