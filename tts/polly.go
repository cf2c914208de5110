package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// synthClient is the subset of the Polly API we call; tests substitute it.
type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Amazon Polly synthesizer.
type PollyConfig struct {
	Region  string
	VoiceID string
	Engine  string
	// StyleVoices optionally maps a speech-style tag to an alternate voice.
	StyleVoices map[string]string
	Timeout     time.Duration
}

// PollyConfigFromEnv builds a config from TTS_* / AWS_* environment variables.
func PollyConfigFromEnv() PollyConfig {
	return PollyConfig{
		Region:  defaultString(os.Getenv("TTS_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		VoiceID: defaultString(os.Getenv("TTS_VOICE"), "Joanna"),
		Engine:  defaultString(os.Getenv("TTS_ENGINE"), "neural"),
		Timeout: 15 * time.Second,
	}
}

// Polly synthesizes speech through Amazon Polly (neural engine, MP3 output).
type Polly struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
}

func NewPolly(cfg PollyConfig) *Polly {
	return NewPollyWithClient(cfg, nil)
}

// NewPollyWithClient lets tests inject a fake Polly API.
func NewPollyWithClient(cfg PollyConfig, client synthClient) *Polly {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Polly{client: client, cfg: cfg}
}

func (p *Polly) Synthesize(ctx context.Context, text, style string) ([]byte, error) {
	client, err := p.resolveClient()
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voiceFor(style)),
	})
	if err != nil {
		return nil, normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, errors.New("polly returned empty audio stream")
	}
	defer output.AudioStream.Close()
	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	return audio, nil
}

// voiceFor folds the speech-style tag into voice selection when an alternate
// voice is configured for it.
func (p *Polly) voiceFor(style string) string {
	if v, ok := p.cfg.StyleVoices[style]; ok && v != "" {
		return v
	}
	return p.cfg.VoiceID
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("polly timeout: %w", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("polly transport: %w", err)
}

func (p *Polly) resolveClient() (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
