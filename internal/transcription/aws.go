package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/types"
)

// S3API is the subset of *s3.Client used by the AWS provider.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TranscribeAPI is the subset of *transcribe.Client used by the AWS provider.
type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// AWS language codes are region qualified.
var awsLanguages = map[string]string{
	"uk": "uk-UA",
	"en": "en-US",
	"ru": "ru-RU",
	"pl": "pl-PL",
}

var jobNameUnsafe = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

// AWS stores recordings in S3 and runs one Amazon Transcribe job per file.
// Existing objects and jobs with the same name are reused.
type AWS struct {
	s3          S3API
	transcribe  TranscribeAPI
	bucket      string
	maxSpeakers int32
	poll        time.Duration
	log         *logrus.Entry
}

func NewAWS(s3c S3API, tc TranscribeAPI, cfg config.TranscribeConfig, log *logrus.Entry) *AWS {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = config.Default().Transcribe.PollInterval
	}
	maxSpeakers := cfg.AWS.MaxSpeakers
	if maxSpeakers < 2 {
		maxSpeakers = 2
	}
	return &AWS{
		s3:          s3c,
		transcribe:  tc,
		bucket:      cfg.AWS.Bucket,
		maxSpeakers: int32(maxSpeakers),
		poll:        poll,
		log:         log.WithField("component", "aws-transcribe"),
	}
}

// JobName derives a stable Transcribe job name from the file name.
func JobName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return "dialogqa-" + strings.Trim(jobNameUnsafe.ReplaceAllString(base, "-"), "-")
}

func (a *AWS) Transcribe(ctx context.Context, path string, opts Options) (*types.TranscriptionResult, error) {
	job := JobName(path)
	key := "audio/" + filepath.Base(path)
	log := a.log.WithFields(logrus.Fields{"file": path, "job": job})

	exists, err := a.objectExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check s3://%s/%s: %w", a.bucket, key, err)
	}
	if exists {
		log.Debug("recording already uploaded")
	} else if err := a.upload(ctx, key, path); err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}

	status, err := a.jobStatus(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	if status == "" {
		if err := a.startJob(ctx, job, key, filepath.Ext(path), opts); err != nil {
			return nil, fmt.Errorf("start job %s: %w", job, err)
		}
		log.Info("transcription job started")
	} else {
		log.WithField("status", status).Info("reusing transcription job")
	}

	if err := a.wait(ctx, job, log); err != nil {
		return nil, err
	}

	out, err := a.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(job + ".json")})
	if err != nil {
		return nil, fmt.Errorf("download transcript %s: %w", job, err)
	}
	defer out.Body.Close()

	var doc awsTranscript
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", job, err)
	}
	res := &types.TranscriptionResult{ID: job, Utterances: doc.utterances()}
	log.WithField("utterances", len(res.Utterances)).Info("transcript completed")
	return res, nil
}

func (a *AWS) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := a.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *AWS) upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key), Body: f})
	return err
}

// jobStatus returns "" when no job with that name exists.
func (a *AWS) jobStatus(ctx context.Context, job string) (ttypes.TranscriptionJobStatus, error) {
	out, err := a.transcribe.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{TranscriptionJobName: aws.String(job)})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if out.TranscriptionJob == nil {
		return "", nil
	}
	return out.TranscriptionJob.TranscriptionJobStatus, nil
}

func (a *AWS) startJob(ctx context.Context, job, key, ext string, opts Options) error {
	lang := opts.LanguageCode
	if mapped, ok := awsLanguages[lang]; ok {
		lang = mapped
	}
	settings := &ttypes.Settings{}
	if opts.DualChannel {
		settings.ChannelIdentification = aws.Bool(true)
	} else {
		settings.ShowSpeakerLabels = aws.Bool(true)
		settings.MaxSpeakerLabels = aws.Int32(a.maxSpeakers)
	}

	_, err := a.transcribe.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(job),
		LanguageCode:         ttypes.LanguageCode(lang),
		MediaFormat:          ttypes.MediaFormat(strings.ToLower(strings.TrimPrefix(ext, "."))),
		Media:                &ttypes.Media{MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", a.bucket, key))},
		OutputBucketName:     aws.String(a.bucket),
		Settings:             settings,
	})
	return err
}

func (a *AWS) wait(ctx context.Context, job string, log *logrus.Entry) error {
	op := func() error {
		status, err := a.jobStatus(ctx, job)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch status {
		case ttypes.TranscriptionJobStatusCompleted:
			return nil
		case ttypes.TranscriptionJobStatusFailed:
			return backoff.Permanent(fmt.Errorf("%w: job %s", ErrTranscriptFailed, job))
		case "":
			return backoff.Permanent(fmt.Errorf("job %s disappeared", job))
		default:
			return errPending
		}
	}
	notify := func(_ error, wait time.Duration) {
		log.WithField("next_poll", wait).Debug("job pending")
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.NewConstantBackOff(a.poll), ctx), notify)
}

// isNotFound matches the error shapes S3 and Transcribe use for missing
// objects and jobs.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey", "NotFoundException", "404":
		return true
	case "BadRequestException":
		return strings.Contains(apiErr.ErrorMessage(), "couldn't be found")
	}
	return false
}

// awsTranscript is the subset of the Transcribe output document we read.
type awsTranscript struct {
	Results struct {
		Items         []awsItem `json:"items"`
		ChannelLabels *struct {
			Channels []struct {
				ChannelLabel string    `json:"channel_label"`
				Items        []awsItem `json:"items"`
			} `json:"channels"`
		} `json:"channel_labels,omitempty"`
	} `json:"results"`
}

type awsItem struct {
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Type         string `json:"type"` // pronunciation | punctuation
	SpeakerLabel string `json:"speaker_label,omitempty"`
	Alternatives []struct {
		Content string `json:"content"`
	} `json:"alternatives"`
}

// utterances groups consecutive words of the same speaker or channel.
// Punctuation attaches to the running utterance.
func (t awsTranscript) utterances() []types.Utterance {
	items := t.Results.Items
	if t.Results.ChannelLabels != nil && len(t.Results.ChannelLabels.Channels) > 0 {
		items = nil
		for _, ch := range t.Results.ChannelLabels.Channels {
			last := ""
			for _, it := range ch.Items {
				it.SpeakerLabel = ch.ChannelLabel
				if it.StartTime == "" {
					it.StartTime = last // punctuation stays behind its word
				}
				last = it.StartTime
				items = append(items, it)
			}
		}
		// channels are listed one after another; interleave them by time
		sort.SliceStable(items, func(i, j int) bool {
			return seconds(items[i].StartTime) < seconds(items[j].StartTime)
		})
	}

	out := make([]types.Utterance, 0)
	var cur *types.Utterance
	for _, it := range items {
		if len(it.Alternatives) == 0 {
			continue
		}
		word := it.Alternatives[0].Content
		if it.Type == "punctuation" {
			if cur != nil {
				cur.Text += word
			}
			continue
		}
		start, end := seconds(it.StartTime), seconds(it.EndTime)
		if cur == nil || cur.Speaker != it.SpeakerLabel {
			out = append(out, types.Utterance{Speaker: it.SpeakerLabel, Text: word, Start: start, End: end})
			cur = &out[len(out)-1]
			continue
		}
		cur.Text += " " + word
		cur.End = end
	}
	return out
}

// seconds converts a Transcribe "12.34" timestamp to milliseconds.
func seconds(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f*1000 + 0.5)
}
