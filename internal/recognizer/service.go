// Package recognizer streams microphone PCM to a gRPC speech recognition
// service and turns its results into speech events.
package recognizer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "nexa.speech.v1.Recognizer"
	// RecognizeMethod is the full method path of the bidirectional stream.
	RecognizeMethod = "/" + ServiceName + "/Recognize"

	// MetadataLanguage carries the BCP-47 language code of the audio.
	MetadataLanguage = "x-language-code"
	// MetadataSampleRate carries the PCM sample rate in hertz.
	MetadataSampleRate = "x-sample-rate"
)

// Result fields carried in each streamed structpb.Struct.
const (
	FieldTranscript = "transcript"
	FieldConfidence = "confidence"
	FieldIsFinal    = "is_final"
)

// RecognizeServer is the server side of one Recognize stream: PCM chunks in,
// recognition results out.
type RecognizeServer = grpc.BidiStreamingServer[wrapperspb.BytesValue, structpb.Struct]

// RecognizeClient is the client side of one Recognize stream.
type RecognizeClient = grpc.BidiStreamingClient[wrapperspb.BytesValue, structpb.Struct]

// Server implements the recognizer service.
type Server interface {
	Recognize(RecognizeServer) error
}

// ServiceDesc describes the recognizer service without generated stubs; the
// messages are protobuf well-known types.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Recognize",
			Handler:       recognizeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nexa/speech/v1/recognizer.proto",
}

// RegisterServer attaches srv to registrar.
func RegisterServer(registrar grpc.ServiceRegistrar, srv Server) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func recognizeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).Recognize(&grpc.GenericServerStream[wrapperspb.BytesValue, structpb.Struct]{ServerStream: stream})
}

// openRecognize starts one Recognize stream on conn.
func openRecognize(ctx context.Context, conn grpc.ClientConnInterface, opts ...grpc.CallOption) (RecognizeClient, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], RecognizeMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, structpb.Struct]{ClientStream: stream}, nil
}

// NewResult builds the message a server sends for one hypothesis.
func NewResult(transcript string, confidence float64, final bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldTranscript: structpb.NewStringValue(transcript),
		FieldConfidence: structpb.NewNumberValue(confidence),
		FieldIsFinal:    structpb.NewBoolValue(final),
	}}
}
