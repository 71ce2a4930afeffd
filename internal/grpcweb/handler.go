// Package grpcweb lets browsers reach the gRPC service over HTTP/1.1.
package grpcweb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/handler"
)

const maxBody = 4 << 20

const (
	frameData    byte = 0x00
	frameTrailer byte = 0x80
)

// Bridge translates gRPC-Web (browser HTTP/1.1) → native gRPC.
type Bridge struct {
	conn        *grpc.ClientConn
	streaming   map[string]bool
	allowOrigin string
	log         *slog.Logger
}

// New dials the gRPC server at addr (e.g. "localhost:50051").
func New(addr, allowOrigin string, log *slog.Logger) (*Bridge, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial: %w", err)
	}
	return FromConn(conn, allowOrigin, log), nil
}

func FromConn(conn *grpc.ClientConn, allowOrigin string, log *slog.Logger) *Bridge {
	streaming := make(map[string]bool)
	for _, sd := range handler.ServiceDesc.Streams {
		streaming[handler.FullMethod(sd.StreamName)] = true
	}
	return &Bridge{conn: conn, streaming: streaming, allowOrigin: allowOrigin, log: log}
}

func (b *Bridge) Close() error { return b.conn.Close() }

// Handler returns an http.Handler that translates gRPC-Web → gRPC.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", b.origin(r))
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, x-grpc-web")
		w.Header().Set("Access-Control-Expose-Headers",
			"Grpc-Status, Grpc-Message, Grpc-Status-Details-Bin, grpc-status, grpc-message")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "application/grpc-web") {
			http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
			return
		}

		b.log.Debug("grpc-web request", "path", r.URL.Path)
		b.forward(w, r)
	})
}

func (b *Bridge) origin(r *http.Request) string {
	if b.allowOrigin != "" && b.allowOrigin != "*" {
		return b.allowOrigin
	}
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	return "*"
}

func (b *Bridge) forward(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, codes.InvalidArgument, "read body failed")
		return
	}
	if len(body) < 5 {
		writeError(w, codes.InvalidArgument, "body too short")
		return
	}

	// grpc-web frame: 1-byte flag + 4-byte big-endian length + protobuf
	msgLen := binary.BigEndian.Uint32(body[1:5])
	if int(msgLen)+5 > len(body) {
		writeError(w, codes.InvalidArgument, "incomplete frame")
		return
	}
	payload := body[5 : 5+msgLen]

	ctx := metadata.NewOutgoingContext(r.Context(), outgoingMD(r))
	if b.streaming[r.URL.Path] {
		b.stream(ctx, w, r.URL.Path, payload)
		return
	}

	// invoke gRPC method using raw codec (pass-through bytes)
	resp := &rawMsg{}
	err = b.conn.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st := status.Convert(err)
		b.log.Debug("grpc-web error", "path", r.URL.Path, "code", st.Code().String(), "message", st.Message())
		writeError(w, st.Code(), st.Message())
		return
	}
	writeSuccess(w, resp.data)
}

// stream relays a server-streaming call, flushing every message.
func (b *Bridge) stream(ctx context.Context, w http.ResponseWriter, path string, payload []byte) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := b.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, path, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st := status.Convert(err)
		writeError(w, st.Code(), st.Message())
		return
	}
	if err := cs.SendMsg(&rawMsg{data: payload}); err != nil && !errors.Is(err, io.EOF) {
		st := status.Convert(err)
		writeError(w, st.Code(), st.Message())
		return
	}
	if err := cs.CloseSend(); err != nil {
		writeError(w, codes.Internal, "close send failed")
		return
	}

	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for {
		msg := &rawMsg{}
		err := cs.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			writeTrailer(w, codes.OK, "")
			return
		}
		if err != nil {
			st := status.Convert(err)
			writeTrailer(w, st.Code(), st.Message())
			return
		}
		if _, err := w.Write(frame(frameData, msg.data)); err != nil {
			b.log.Debug("grpc-web client gone", "path", path, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// outgoingMD forwards the token and the caller's address for rate limiting.
func outgoingMD(r *http.Request) metadata.MD {
	md := metadata.MD{}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		md.Set("authorization", vals...)
	}
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		fwd = host
	}
	md.Set("x-forwarded-for", fwd)
	return md
}

// rawMsg wraps raw protobuf bytes.
type rawMsg struct{ data []byte }

// rawCodec passes bytes through without marshal/unmarshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	return v.(*rawMsg).data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m := v.(*rawMsg)
	m.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "raw" }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func writeTrailer(w http.ResponseWriter, code codes.Code, msg string) {
	trailer := fmt.Sprintf("grpc-status:%d\r\n", code)
	if msg != "" {
		trailer += "grpc-message:" + url.PathEscape(msg) + "\r\n"
	}
	w.Write(frame(frameTrailer, []byte(trailer)))
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	writeTrailer(w, code, msg)
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	w.Write(frame(frameData, data))
	writeTrailer(w, codes.OK, "")
}
