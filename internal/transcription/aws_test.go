package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialog-insights-go/internal/config"
)

type fakeS3 struct {
	exists  bool
	puts    []string
	gets    []string
	content string
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.exists {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets = append(f.gets, aws.ToString(in.Key))
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.content))}, nil
}

// fakeTranscribe reports the job missing until started, then walks statuses.
type fakeTranscribe struct {
	statuses []ttypes.TranscriptionJobStatus
	started  *transcribe.StartTranscriptionJobInput
	gets     int
}

func (f *fakeTranscribe) StartTranscriptionJob(_ context.Context, in *transcribe.StartTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error) {
	f.started = in
	return &transcribe.StartTranscriptionJobOutput{}, nil
}

func (f *fakeTranscribe) GetTranscriptionJob(_ context.Context, in *transcribe.GetTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error) {
	f.gets++
	if f.started == nil && len(f.statuses) > 0 && f.statuses[0] == "" {
		f.statuses = f.statuses[1:]
		return nil, &smithy.GenericAPIError{Code: "BadRequestException", Message: "The requested job couldn't be found. Check the job name and try your request again."}
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &transcribe.GetTranscriptionJobOutput{
		TranscriptionJob: &ttypes.TranscriptionJob{TranscriptionJobStatus: status},
	}, nil
}

const speakerDoc = `{"results":{"items":[
	{"start_time":"0.0","end_time":"0.4","type":"pronunciation","speaker_label":"spk_0","alternatives":[{"content":"Добрий"}]},
	{"start_time":"0.4","end_time":"0.9","type":"pronunciation","speaker_label":"spk_0","alternatives":[{"content":"день"}]},
	{"type":"punctuation","alternatives":[{"content":","}]},
	{"start_time":"1.2","end_time":"1.5","type":"pronunciation","speaker_label":"spk_1","alternatives":[{"content":"Вітаю"}]}
]}}`

func awsCfg() config.TranscribeConfig {
	cfg := config.Default().Transcribe
	cfg.Provider = "aws"
	cfg.AWS.Bucket = "calls-bucket"
	cfg.PollInterval = time.Millisecond
	return cfg
}

func TestAWSTranscribeSpeakerLabels(t *testing.T) {
	s3c := &fakeS3{content: speakerDoc}
	tc := &fakeTranscribe{statuses: []ttypes.TranscriptionJobStatus{"", ttypes.TranscriptionJobStatusInProgress, ttypes.TranscriptionJobStatusCompleted}}
	path := writeAudio(t, t.TempDir(), "Call 01.WAV")

	res, err := NewAWS(s3c, tc, awsCfg(), nullLog()).
		Transcribe(context.Background(), path, Options{LanguageCode: "uk", DualChannel: false})
	require.NoError(t, err)

	assert.Equal(t, []string{"audio/Call 01.WAV"}, s3c.puts)
	assert.Equal(t, []string{"dialogqa-Call-01.json"}, s3c.gets)

	require.NotNil(t, tc.started)
	assert.Equal(t, "dialogqa-Call-01", aws.ToString(tc.started.TranscriptionJobName))
	assert.Equal(t, ttypes.LanguageCode("uk-UA"), tc.started.LanguageCode)
	assert.Equal(t, ttypes.MediaFormat("wav"), tc.started.MediaFormat)
	assert.Equal(t, "s3://calls-bucket/audio/Call 01.WAV", aws.ToString(tc.started.Media.MediaFileUri))
	assert.True(t, aws.ToBool(tc.started.Settings.ShowSpeakerLabels))
	assert.EqualValues(t, 2, aws.ToInt32(tc.started.Settings.MaxSpeakerLabels))
	assert.Nil(t, tc.started.Settings.ChannelIdentification)

	assert.Equal(t, "dialogqa-Call-01", res.ID)
	require.Len(t, res.Utterances, 2)
	assert.Equal(t, "Добрий день,", res.Utterances[0].Text)
	assert.EqualValues(t, 0, res.Utterances[0].Start)
	assert.EqualValues(t, 900, res.Utterances[0].End)
	assert.Equal(t, "spk_1", res.Utterances[1].Speaker)
}

func TestAWSReusesObjectAndJob(t *testing.T) {
	s3c := &fakeS3{exists: true, content: speakerDoc}
	tc := &fakeTranscribe{statuses: []ttypes.TranscriptionJobStatus{ttypes.TranscriptionJobStatusCompleted}}
	path := writeAudio(t, t.TempDir(), "call.wav")

	_, err := NewAWS(s3c, tc, awsCfg(), nullLog()).Transcribe(context.Background(), path, Options{DualChannel: true})
	require.NoError(t, err)

	assert.Empty(t, s3c.puts)
	assert.Nil(t, tc.started)
}

func TestAWSFailedJob(t *testing.T) {
	s3c := &fakeS3{exists: true}
	tc := &fakeTranscribe{statuses: []ttypes.TranscriptionJobStatus{"", ttypes.TranscriptionJobStatusFailed}}
	path := writeAudio(t, t.TempDir(), "call.wav")

	_, err := NewAWS(s3c, tc, awsCfg(), nullLog()).Transcribe(context.Background(), path, Options{DualChannel: true})
	assert.ErrorIs(t, err, ErrTranscriptFailed)
	require.NotNil(t, tc.started)
	assert.True(t, aws.ToBool(tc.started.Settings.ChannelIdentification))
	assert.Empty(t, s3c.gets)
}

func TestChannelUtterancesInterleave(t *testing.T) {
	doc := awsTranscript{}
	raw := `{"results":{"channel_labels":{"channels":[
		{"channel_label":"ch_0","items":[
			{"start_time":"0.0","end_time":"0.5","type":"pronunciation","alternatives":[{"content":"Алло"}]},
			{"type":"punctuation","alternatives":[{"content":"?"}]},
			{"start_time":"2.0","end_time":"2.5","type":"pronunciation","alternatives":[{"content":"Так"}]}]},
		{"channel_label":"ch_1","items":[
			{"start_time":"1.0","end_time":"1.5","type":"pronunciation","alternatives":[{"content":"Слухаю"}]}]}
	]}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	utt := doc.utterances()

	require.Len(t, utt, 3)
	assert.Equal(t, "ch_0", utt[0].Speaker)
	assert.Equal(t, "Алло?", utt[0].Text)
	assert.Equal(t, "ch_1", utt[1].Speaker)
	assert.Equal(t, "Так", utt[2].Text)
	assert.EqualValues(t, 2000, utt[2].Start)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "BadRequestException", Message: "invalid media"}))
	assert.False(t, isNotFound(errors.New("NotFound")))
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "dialogqa-call_01", JobName("/tmp/calls/call_01.wav"))
	assert.Equal(t, "dialogqa-a-b", JobName("a (b).wav"))
}
