package app

import (
	"context"
	"time"

	"github.com/atlasvoice/atlas/internal/capture"
	"github.com/atlasvoice/atlas/internal/dialog"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/normalize"
	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/internal/settings"
	"github.com/atlasvoice/atlas/internal/synth"
	"github.com/atlasvoice/atlas/pkg/speechio"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the event loop until ctx is cancelled. All session state is
// confined to this goroutine; control operations and provider events are
// applied one at a time, in arrival order.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.queue = synth.NewQueue(o.output,
		synth.WithCapacity(o.cfg.QueueCapacity),
		synth.WithLogger(o.log),
		synth.WithMetrics(o.metrics))

	defer close(o.done)

	for {
		var retryC <-chan time.Time
		if o.retryTimer != nil {
			retryC = o.retryTimer.C
		}

		select {
		case <-ctx.Done():
			o.teardown(context.WithoutCancel(ctx))
			return ctx.Err()

		case cmd := <-o.cmds:
			cmd.reply <- cmd.apply(ctx)

		case ev := <-o.input.Events():
			o.onRecognition(ctx, ev)

		case e := <-o.input.Errors():
			o.onInputError(ctx, e)

		case ev := <-o.output.RenderEvents():
			o.onRenderEvent(ctx, ev)

		case hd := <-o.results:
			o.onHandlerResult(ctx, hd)

		case <-retryC:
			o.retryTimer = nil
			o.onRetry(ctx)
		}
	}
}

// teardown releases everything on loop exit.
func (o *Orchestrator) teardown(ctx context.Context) {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	if o.machine != nil {
		if err := o.machine.Stop(); err != nil {
			o.log.Warn("capture stop during shutdown", "error", err)
		}
	}
	if err := o.queue.Stop(ctx); err != nil {
		o.log.Warn("queue stop during shutdown", "error", err)
	}
	if o.voiceOn {
		o.voiceOn = false
		o.sessionGauge(ctx, -1)
	}
}

// enable starts a capture session using the stored settings. Already-running
// sessions are left alone; a session that ended (manual mode completion,
// abort, fatal error) is replaced by a fresh one.
func (o *Orchestrator) enable(ctx context.Context) error {
	if o.voiceOn && o.machine != nil {
		switch o.machine.State() {
		case capture.StateListening, capture.StateSuspended, capture.StateErrorRecoverable:
			return nil
		}
	}

	v := o.current
	if o.store != nil {
		loaded, err := o.store.Load(ctx)
		if err != nil {
			o.log.Warn("settings load failed, using last known", "error", err)
		} else {
			v = loaded
		}
	}

	mode := o.cfg.Mode
	if v.WakeWordEnabled {
		mode = capture.ModeWakeWord
	} else if mode == capture.ModeWakeWord {
		mode = capture.ModeContinuous
	}

	machine := capture.New(o.input, capture.Config{
		Mode:            mode,
		Language:        v.Language,
		ConfidenceFloor: o.cfg.ConfidenceFloor,
		WakeWord:        o.cfg.WakeWord,
		WakeWindow:      o.cfg.WakeWindow,
	}, capture.WithLogger(o.log), capture.WithMetrics(o.metrics))

	if err := machine.Start(ctx); err != nil {
		o.lastError = err.Error()
		return err
	}

	o.machine = machine
	o.current = v
	o.voiceParams = speechio.VoiceParams{
		Language: v.Language,
		Rate:     v.Rate,
		Pitch:    v.Pitch,
		Volume:   v.Volume,
	}
	o.lastError = ""
	if !o.voiceOn {
		o.voiceOn = true
		o.sessionGauge(ctx, 1)
	}
	return nil
}

// disable tears the session down: capture stopped, dialog cancelled, queue
// flushed, in-flight handler results discarded. Idempotent.
func (o *Orchestrator) disable(ctx context.Context) error {
	o.gen++
	o.resolver.Cancel()
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}

	var err error
	if o.machine != nil {
		err = o.machine.Stop()
		o.machine = nil
	}
	if qerr := o.queue.Stop(ctx); qerr != nil && err == nil {
		err = qerr
	}
	if o.voiceOn {
		o.voiceOn = false
		o.sessionGauge(ctx, -1)
	}
	return err
}

// update validates, persists and records a settings patch. The running
// session keeps its parameters; the next enable picks the new values up.
func (o *Orchestrator) update(ctx context.Context, patch settings.Patch) error {
	next := patch.Apply(o.current)
	if err := next.Validate(); err != nil {
		return err
	}
	if o.store != nil {
		if err := o.store.Save(ctx, next); err != nil {
			return err
		}
	}
	o.current = next
	return nil
}

// onRecognition runs one finalized transcript through the pipeline.
// Recognizers occasionally pack several commands into one final result, so a
// fresh transcript is split into sentence segments and each runs as its own
// utterance. While a dialog turn is open the whole transcript is the slot
// answer and is never split.
func (o *Orchestrator) onRecognition(ctx context.Context, ev speechio.RecognitionEvent) {
	if !o.voiceOn || o.machine == nil {
		o.recordRecognition(ctx, "disabled")
		return
	}

	text, drop := o.machine.HandleEvent(ev)
	if drop != capture.DropNone {
		o.recordRecognition(ctx, string(drop))
		return
	}
	o.recordRecognition(ctx, "accepted")

	if o.resolver.Pending() {
		if utterance := normalize.Utterance(text); utterance != "" {
			o.processUtterance(ctx, utterance)
		}
		return
	}
	for _, utterance := range normalize.Segments(text) {
		o.processUtterance(ctx, utterance)
	}
}

// processUtterance runs one normalized utterance through classify, slot
// resolution and dispatch under a single trace span.
func (o *Orchestrator) processUtterance(ctx context.Context, utterance string) {
	ctx, span := observe.StartSpan(ctx, "pipeline.utterance",
		trace.WithAttributes(attribute.Int("utterance.len", len(utterance))))
	defer span.End()
	start := time.Now()

	var out dialog.Outcome
	if o.resolver.Pending() {
		out = o.resolver.Answer(utterance)
	} else {
		in := o.classifier.Classify(utterance)
		span.SetAttributes(
			attribute.String("intent.kind", string(in.Kind)),
			attribute.Float64("intent.confidence", in.Confidence))
		if o.metrics != nil {
			o.metrics.RecordIntent(ctx, string(in.Kind), in.Action)
		}
		out = o.resolver.Resolve(in)
	}

	if o.metrics != nil {
		o.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}

	switch out.Status {
	case dialog.StatusPrompt, dialog.StatusFailed:
		o.speak(ctx, out.Speak, synth.PriorityNormal)
	case dialog.StatusComplete:
		o.dispatchAsync(ctx, out.Intent)
	}
}

// dispatchAsync invokes the handler off the loop and posts the result back,
// tagged with the current generation so results from a torn-down session are
// dropped.
func (o *Orchestrator) dispatchAsync(ctx context.Context, in intent.Intent) {
	gen := o.gen
	go func() {
		res := o.dispatcher.Dispatch(ctx, in)
		select {
		case o.results <- handlerDone{gen: gen, result: res}:
		case <-ctx.Done():
		}
	}()
}

// onHandlerResult speaks a completed dispatch, unless the session it belongs
// to is gone.
func (o *Orchestrator) onHandlerResult(ctx context.Context, hd handlerDone) {
	if hd.gen != o.gen {
		o.log.Debug("discarding handler result from disabled session")
		return
	}

	res := hd.result
	o.log.Info("assistant response",
		"success", res.Success,
		"error_kind", res.ErrorKind,
		"display", res.DisplayText)

	if o.current.AutoSpeak {
		o.speak(ctx, res.SpokenText, synth.PriorityNormal)
	}
}

// onInputError routes a provider error through the capture machine.
func (o *Orchestrator) onInputError(ctx context.Context, e speechio.InputError) {
	if o.machine == nil {
		return
	}
	delay, fatal := o.machine.HandleError(e)
	o.afterCaptureError(ctx, delay, fatal)
}

// onRetry re-attempts the provider after a recoverable error's backoff.
func (o *Orchestrator) onRetry(ctx context.Context) {
	if o.machine == nil || !o.voiceOn {
		return
	}
	delay, fatal := o.machine.Restart(ctx)
	o.afterCaptureError(ctx, delay, fatal)
}

func (o *Orchestrator) afterCaptureError(ctx context.Context, delay time.Duration, fatal bool) {
	switch {
	case fatal:
		o.failSession(ctx)
	case delay > 0:
		o.scheduleRetry(delay)
	case o.machine.State() == capture.StateIdle:
		// Provider aborted: the session is over without an error to announce.
		if o.voiceOn {
			o.voiceOn = false
			o.sessionGauge(ctx, -1)
		}
	}
}

// failSession ends the session after a fatal capture error: the user hears
// one apology, the structured error stays visible in Status, and any pending
// dialog or handler result is discarded.
func (o *Orchestrator) failSession(ctx context.Context) {
	o.gen++
	o.resolver.Cancel()
	o.lastError = "speech capture failed"
	o.speak(ctx, fatalCaptureApology, synth.PriorityHigh)
	if o.voiceOn {
		o.voiceOn = false
		o.sessionGauge(ctx, -1)
	}
}

// onRenderEvent advances the queue and keeps the anti-feedback invariant:
// capture suspends before audible output starts and resumes only once the
// queue is drained.
func (o *Orchestrator) onRenderEvent(ctx context.Context, ev speechio.RenderEvent) {
	switch o.queue.HandleRenderEvent(ctx, ev) {
	case synth.SignalSpeakingStarted:
		if o.machine != nil {
			o.machine.Suspend()
		}
	case synth.SignalSpeakingEnded:
		if o.voiceOn && o.machine != nil {
			if err := o.machine.Resume(); err != nil {
				o.log.Warn("capture resume failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) speak(ctx context.Context, text string, pri synth.Priority) {
	if text == "" {
		return
	}
	o.queue.Enqueue(ctx, text, pri, o.voiceParams)
}

func (o *Orchestrator) scheduleRetry(d time.Duration) {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
	}
	o.retryTimer = time.NewTimer(d)
}

func (o *Orchestrator) recordRecognition(ctx context.Context, disposition string) {
	if o.metrics != nil {
		o.metrics.RecordRecognition(ctx, disposition)
	}
}

func (o *Orchestrator) sessionGauge(ctx context.Context, delta int64) {
	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(ctx, delta)
	}
}
