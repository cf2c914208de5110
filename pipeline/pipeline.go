package pipeline

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/onnwee/mintcast/ai"
	"github.com/onnwee/mintcast/broadcast"
	"github.com/onnwee/mintcast/db"
	"github.com/onnwee/mintcast/forwarder"
	"github.com/onnwee/mintcast/telemetry"
	"github.com/onnwee/mintcast/tts"
)

// Responder generates a persona reply from a history snapshot against a
// concrete relay base URL.
type Responder interface {
	Generate(ctx context.Context, baseURL string, history []ai.Message) (ai.Reply, error)
}

// Sink receives finished results for fan-out to viewers.
type Sink interface {
	Broadcast(res broadcast.Result)
}

// Processor runs one queued turn end to end: pick the active forwarder, call
// the AI relay, synthesize speech, and broadcast. Every failure leg degrades
// rather than drops: the viewer always gets a textual result for an accepted
// turn, even if it is only the fallback line.
type Processor struct {
	Responder Responder
	Registry  *forwarder.Registry
	Speech    tts.Synthesizer // nil disables synthesis
	History   *Window
	Sink      Sink

	DB   *sql.DB // nil disables the audit trail
	Room func() string

	FallbackReply string
	DiscardStale  bool
	CurrentGen    func() uint64 // nil means results are never stale
}

// Process is the JobRunner handed to the queue.
func (p *Processor) Process(ctx context.Context, turn ChatTurn, generation uint64) {
	ctx, span := telemetry.StartSpan(ctx, "mintcast/pipeline", "pipeline.process")
	defer span.End()

	var res broadcast.Result
	telemetry.TimeFunc(telemetry.JobDuration, func() {
		res = p.runTurn(ctx, turn)
	})

	if p.DiscardStale && p.CurrentGen != nil && p.CurrentGen() != generation {
		slog.Info("discarding stale result after room switch",
			slog.String("username", turn.Username), slog.String("component", "pipeline"))
		telemetry.SetSpanSuccess(span)
		return
	}

	p.record(ctx, turn, res)
	p.Sink.Broadcast(res)
	telemetry.JobsProcessed.Inc()
	telemetry.SetSpanSuccess(span)
}

// runTurn produces the result payload, exercising the failover policy on AI
// errors. Speech is attempted only for a genuine persona reply; the fallback
// line goes out as text only.
func (p *Processor) runTurn(ctx context.Context, turn ChatTurn) broadcast.Result {
	res := broadcast.Result{Username: turn.Username, UserMessage: turn.Message}

	url, err := p.Registry.SelectActive(ctx)
	if err != nil {
		if errors.Is(err, forwarder.ErrNoneAvailable) {
			slog.Error("no forwarder available; replying with fallback",
				slog.String("username", turn.Username), slog.String("component", "pipeline"))
		} else {
			slog.Error("forwarder lookup failed", slog.Any("err", err), slog.String("component", "pipeline"))
		}
		fb := p.FallbackReply
		res.Message = &fb
		return res
	}

	history := p.historyMessages()
	var reply ai.Reply
	var aiErr error
	telemetry.TimeFunc(telemetry.AIDuration, func() {
		reply, aiErr = p.Responder.Generate(ctx, url, history)
	})
	if aiErr != nil {
		telemetry.AIFailures.Inc()
		slog.Warn("ai relay call failed",
			slog.Any("err", aiErr),
			slog.String("class", ai.ClassifyRelayError(aiErr).String()),
			slog.String("forwarder", url),
			slog.String("component", "pipeline"))
		if _, foErr := p.Registry.Failover(ctx); foErr != nil && !errors.Is(foErr, forwarder.ErrNoneAvailable) {
			slog.Error("failover failed", slog.Any("err", foErr), slog.String("component", "pipeline"))
		}
		fb := p.FallbackReply
		res.Message = &fb
		return res
	}

	res.Message = &reply.Content
	if reply.Emotion != "" {
		emotion := reply.Emotion
		res.Emotion = &emotion
	}

	if p.Speech != nil {
		var audio []byte
		var ttsErr error
		telemetry.TimeFunc(telemetry.TTSDuration, func() {
			audio, ttsErr = p.Speech.Synthesize(ctx, reply.Content, tts.StyleForEmotion(reply.Emotion))
		})
		if ttsErr != nil {
			telemetry.TTSFailures.Inc()
			slog.Warn("speech synthesis failed; broadcasting text only",
				slog.Any("err", ttsErr), slog.String("component", "pipeline"))
		} else if len(audio) > 0 {
			encoded := base64.StdEncoding.EncodeToString(audio)
			res.Audio = &encoded
		}
	}
	return res
}

// historyMessages converts the window snapshot into the relay's wire shape.
func (p *Processor) historyMessages() []ai.Message {
	turns := p.History.Snapshot()
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, ai.Message{Name: t.Username, Chat: t.Message})
	}
	return out
}

// record appends the turn and its outcome to the audit trail. Best-effort:
// a write failure is logged and the broadcast proceeds.
func (p *Processor) record(ctx context.Context, turn ChatTurn, res broadcast.Result) {
	if p.DB == nil {
		return
	}
	room := ""
	if p.Room != nil {
		room = p.Room()
	}
	if err := db.RecordTurn(ctx, p.DB, room, turn.Username, turn.Message, res.Message, res.Emotion); err != nil {
		slog.Warn("audit write failed", slog.Any("err", err), slog.String("component", "pipeline"))
	}
}
