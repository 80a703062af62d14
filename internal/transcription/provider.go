// Package transcription turns a directory of call recordings into transcripts.
package transcription

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/types"
)

// ErrTranscriptFailed is wrapped when the provider reports a failed job.
var ErrTranscriptFailed = errors.New("transcription failed")

type Options struct {
	LanguageCode string
	// DualChannel splits speakers by stereo channel instead of diarization.
	DualChannel bool
}

// Provider transcribes one local audio file. Each external call is made once;
// only job status reads are repeated until the job settles.
type Provider interface {
	Transcribe(ctx context.Context, path string, opts Options) (*types.TranscriptionResult, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.TranscribeConfig, log *logrus.Entry) (Provider, error) {
	switch cfg.Provider {
	case "assemblyai":
		return NewAssemblyAI(cfg, log), nil
	case "aws":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewAWS(s3.NewFromConfig(awsCfg), transcribe.NewFromConfig(awsCfg), cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown transcription provider %q", config.ErrInvalid, cfg.Provider)
	}
}
