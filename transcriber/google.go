package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"moodmic/encoder"
)

// Google streams audio to Cloud Speech-to-Text over gRPC. Credentials come
// from the given file or, when empty, application default credentials.
type Google struct {
	baseTranscriber
	client *speech.Client
}

func NewGoogle(ctx context.Context, credentialsFile string) (*Google, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return &Google{client: c}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Close() error { return g.client.Close() }

func (g *Google) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	lang := cfg.Language
	if lang == "" {
		lang = g.lang
	}
	return newStreamSession(g.Name(), func() (rawStreamSession, error) {
		return g.dial(ctx, googleLanguageCode(lang))
	}), nil
}

// googleLanguageCode expands bare language tags to the BCP-47 codes the API
// expects.
func googleLanguageCode(lang string) string {
	if lang == "" || lang == "en" {
		return "en-US"
	}
	return lang
}

func (g *Google) dial(ctx context.Context, lang string) (rawStreamSession, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := g.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("google streaming recognize: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            encoder.SampleRate,
					AudioChannelCount:          encoder.Channels,
					LanguageCode:               lang,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("google streaming config: %w", err)
	}
	return &googleStreamSession{stream: stream, ctx: streamCtx, cancel: cancel}, nil
}

type googleStreamSession struct {
	stream    speechpb.Speech_StreamingRecognizeClient
	ctx       context.Context
	cancel    context.CancelFunc
	finalized bool
	closeOnce sync.Once
}

func (s *googleStreamSession) Send(pcm []byte) error {
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
}

func (s *googleStreamSession) CloseSend() error {
	return s.stream.CloseSend()
}

// Recv folds one response into a single update. The server ends the stream
// with io.EOF once every result for the half-closed input is out; that is
// reported once as a finalize marker, after which Recv parks until Close.
func (s *googleStreamSession) Recv() (streamUpdate, error) {
	if s.finalized {
		<-s.ctx.Done()
		return streamUpdate{}, s.ctx.Err()
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.finalized = true
		return streamUpdate{FromFinalize: true}, nil
	}
	if err != nil {
		if status.Code(err) == codes.Canceled {
			return streamUpdate{}, context.Canceled
		}
		return streamUpdate{}, fmt.Errorf("google recv: %w", err)
	}
	if st := resp.GetError(); st != nil && st.GetCode() != 0 {
		return streamUpdate{}, fmt.Errorf("google: %s", st.GetMessage())
	}

	var final, interim []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if r.GetIsFinal() {
			final = append(final, strings.TrimSpace(alts[0].GetTranscript()))
		} else {
			interim = append(interim, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	if len(final) > 0 {
		return streamUpdate{Transcript: strings.Join(final, " "), IsFinal: true}, nil
	}
	return streamUpdate{Transcript: strings.Join(interim, " ")}, nil
}

func (s *googleStreamSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
