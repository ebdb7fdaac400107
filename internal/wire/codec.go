package wire

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor applies symmetric compression to frame payloads. The broker
// picks one codec at startup from configuration and applies it uniformly
// to both directions.
type Compressor interface {
	//1.- Name returns the codec identifier logged alongside frame sizes.
	Name() string
	//2.- Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	//3.- Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

// noopCompressor passes payloads through unchanged; it is selected by the
// codec name "none" (or an empty name), for deployments where compression
// would only add CPU cost for no transfer saving.
type noopCompressor struct{}

// NewNoopCompressor constructs a Compressor that performs no transformation.
func NewNoopCompressor() Compressor { return noopCompressor{} }

func (noopCompressor) Name() string                          { return "none" }
func (noopCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// snappyCompressor wraps github.com/golang/snappy, chosen for its very low
// CPU overhead relative to its compression ratio on short-lived frames.
type snappyCompressor struct{}

// NewSnappyCompressor constructs a Compressor backed by snappy block
// compression.
func NewSnappyCompressor() Compressor { return snappyCompressor{} }

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}

// zstdCompressor wraps github.com/klauspost/compress/zstd for connections
// whose frames are large enough that the extra ratio is worth the CPU.
// EncodeAll/DecodeAll on a shared encoder/decoder are documented safe for
// concurrent use, so one pair is reused across every session.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor constructs a Compressor backed by zstd. The returned
// error is non-nil only if the library itself fails to allocate its
// internal encoder/decoder state.
func NewZstdCompressor() (Compressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: enc, decoder: dec}, nil
}

func (z *zstdCompressor) Name() string { return "zstd" }

func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// CompressorByName resolves a configured codec name to a Compressor.
func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return NewNoopCompressor(), nil
	case "snappy":
		return NewSnappyCompressor(), nil
	case "zstd":
		return NewZstdCompressor()
	default:
		return nil, fmt.Errorf("wire: unknown compression codec %q", name)
	}
}

// Codec marshals requests/responses to and from frame bytes, applying
// compression above a size threshold: small frames aren't worth the CPU.
type Codec struct {
	compressor          Compressor
	compressionMinBytes int
}

// NewCodec builds a Codec. Frames smaller than compressionMinBytes are sent
// uncompressed regardless of the configured compressor.
func NewCodec(compressor Compressor, compressionMinBytes int) *Codec {
	return &Codec{compressor: compressor, compressionMinBytes: compressionMinBytes}
}

// A framed body is a one-byte flag indicating whether the body is
// compressed, followed by the (possibly compressed) JSON-encoded request
// or response.
const (
	flagPlain      byte = 0
	flagCompressed byte = 1
)

// EncodeRequest marshals a RequestWrapper into a framed body.
func (c *Codec) EncodeRequest(req RequestWrapper) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wire: encode request: %w", err)
	}
	return c.wrap(body)
}

// DecodeRequest unmarshals a framed body into a RequestWrapper.
func (c *Codec) DecodeRequest(frame []byte) (RequestWrapper, error) {
	body, err := c.unwrap(frame)
	if err != nil {
		return RequestWrapper{}, err
	}
	var req RequestWrapper
	if err := json.Unmarshal(body, &req); err != nil {
		return RequestWrapper{}, fmt.Errorf("wire: decode request: %w", err)
	}
	return req, nil
}

// EncodeResponse marshals a ResponseWrapper into a framed body.
func (c *Codec) EncodeResponse(resp ResponseWrapper) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("wire: encode response: %w", err)
	}
	return c.wrap(body)
}

// DecodeResponse unmarshals a framed body into a ResponseWrapper.
func (c *Codec) DecodeResponse(frame []byte) (ResponseWrapper, error) {
	body, err := c.unwrap(frame)
	if err != nil {
		return ResponseWrapper{}, err
	}
	var resp ResponseWrapper
	if err := json.Unmarshal(body, &resp); err != nil {
		return ResponseWrapper{}, fmt.Errorf("wire: decode response: %w", err)
	}
	return resp, nil
}

func (c *Codec) wrap(body []byte) ([]byte, error) {
	if len(body) < c.compressionMinBytes {
		return append([]byte{flagPlain}, body...), nil
	}
	compressed, err := c.compressor.Compress(body)
	if err != nil {
		return nil, fmt.Errorf("wire: compress: %w", err)
	}
	return append([]byte{flagCompressed}, compressed...), nil
}

func (c *Codec) unwrap(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("wire: empty frame")
	}
	flag, body := frame[0], frame[1:]
	switch flag {
	case flagPlain:
		return body, nil
	case flagCompressed:
		out, err := c.compressor.Decompress(body)
		if err != nil {
			return nil, fmt.Errorf("wire: decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: unknown frame flag %d", flag)
	}
}
