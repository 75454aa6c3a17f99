package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rbright/nexa/internal/audio"
	"github.com/rbright/nexa/internal/speech"
)

const sampleRate = 16000

// AudioSource opens a PCM capture for one recognition run.
type AudioSource interface {
	Open(ctx context.Context) (audio.PCMSource, error)
}

// Config controls stream setup.
type Config struct {
	Endpoint     string
	LanguageCode string
	DialTimeout  time.Duration
	// DialOptions replace the default insecure transport credentials.
	DialOptions []grpc.DialOption
}

// Client is a speech.Recognizer backed by the gRPC Recognize stream. One run
// is active at a time; starting a new run aborts the previous one.
type Client struct {
	logger *slog.Logger
	cfg    Config
	audio  AudioSource

	mu      sync.Mutex
	current *stream
}

var _ speech.Recognizer = (*Client)(nil)

// New validates cfg and returns an idle client.
func New(logger *slog.Logger, cfg Config, source AudioSource) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, errors.New("recognizer endpoint is empty")
	}
	if source == nil {
		return nil, fmt.Errorf("recognizer requires an audio source: %w", speech.ErrUnsupported)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	if len(cfg.DialOptions) == 0 {
		cfg.DialOptions = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &Client{logger: logger, cfg: cfg, audio: source}, nil
}

// stream is one Recognize RPC plus the capture feeding it.
type stream struct {
	cancel context.CancelFunc
	conn   *grpc.ClientConn
	rpc    RecognizeClient
	pcm    audio.PCMSource
	events chan speech.Event
	done   chan struct{}
}

// Start dials the service, opens a capture and begins streaming. Events are
// delivered until a RecognitionEnded event, after which the channel closes.
func (c *Client) Start(ctx context.Context) (<-chan speech.Event, error) {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	conn, err := grpc.NewClient(c.cfg.Endpoint, c.cfg.DialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial recognizer grpc %q: %w", c.cfg.Endpoint, err)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn.Connect()
	err = waitForReady(readyCtx, conn)
	cancelReady()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for recognizer grpc readiness: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	rpcCtx := metadata.AppendToOutgoingContext(runCtx,
		MetadataLanguage, c.cfg.LanguageCode,
		MetadataSampleRate, strconv.Itoa(sampleRate),
	)
	rpc, err := openRecognize(rpcCtx, conn)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open recognize stream: %w", err)
	}

	pcm, err := c.audio.Open(runCtx)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open audio capture: %w", err)
	}

	s := &stream{
		cancel: cancel,
		conn:   conn,
		rpc:    rpc,
		pcm:    pcm,
		events: make(chan speech.Event, 32),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	go c.sendLoop(s)
	go c.recvLoop(runCtx, s)
	c.logger.Debug("recognizer stream started", "endpoint", c.cfg.Endpoint, "language", c.cfg.LanguageCode)
	return s.events, nil
}

// Stop ends capture; the service flushes its final results and closes the stream.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		_ = s.pcm.Stop()
	}
}

// Abort cancels the RPC, discarding pending audio and results.
func (c *Client) Abort() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s != nil {
		s.cancel()
		_ = s.pcm.Stop()
	}
}

func (c *Client) sendLoop(s *stream) {
	for chunk := range s.pcm.Chunks() {
		if err := s.rpc.Send(wrapperspb.Bytes(chunk)); err != nil {
			// The receive loop reports the terminal status.
			_ = s.pcm.Stop()
			for range s.pcm.Chunks() {
			}
			return
		}
	}
	_ = s.rpc.CloseSend()
	c.logCapture(s.pcm)
}

// logCapture reports how much speech-level audio a stream carried. Sources
// without statistics are skipped.
func (c *Client) logCapture(pcm audio.PCMSource) {
	meter, ok := pcm.(interface{ Stats() audio.Stats })
	if !ok {
		return
	}
	stats := meter.Stats()
	if stats.Frames > 0 && stats.Voiced == 0 {
		c.logger.Warn("captured audio contained no speech", "frames", stats.Frames, "peak", stats.Peak)
		return
	}
	c.logger.Debug("capture finished", "bytes", stats.Bytes, "frames", stats.Frames, "voiced", stats.Voiced, "peak", stats.Peak)
}

func (c *Client) recvLoop(ctx context.Context, s *stream) {
	defer func() {
		s.cancel()
		_ = s.pcm.Stop()
		_ = s.conn.Close()
		c.mu.Lock()
		if c.current == s {
			c.current = nil
		}
		c.mu.Unlock()
		close(s.events)
		close(s.done)
	}()

	emit := func(ev speech.Event) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		msg, err := s.rpc.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Warn("recognizer stream failed", "error", err.Error())
				if !emit(speech.Failure(errorCode(err), err)) {
					return
				}
			}
			emit(speech.Ended())
			return
		}
		ev, ok := eventFromResult(msg)
		if !ok {
			continue
		}
		if !emit(ev) {
			return
		}
	}
}

// eventFromResult decodes one streamed result. Results without transcript
// text are skipped.
func eventFromResult(msg *structpb.Struct) (speech.Event, bool) {
	fields := msg.GetFields()
	transcript := strings.Join(strings.Fields(fields[FieldTranscript].GetStringValue()), " ")
	if transcript == "" {
		return speech.Event{}, false
	}
	confidence := fields[FieldConfidence].GetNumberValue()
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return speech.Transcript(transcript, confidence, fields[FieldIsFinal].GetBoolValue()), true
}

// errorCode maps a gRPC status to a recognition error code.
func errorCode(err error) string {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return speech.CodeNotAllowed
	case codes.Canceled:
		return speech.CodeAborted
	case codes.DeadlineExceeded:
		return speech.CodeNoSpeech
	default:
		return speech.CodeNetwork
	}
}
