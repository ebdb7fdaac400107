package wire

import "testing"

func TestCodecRoundTripsSmallPlainFrame(t *testing.T) {
	codec := NewCodec(NewSnappyCompressor(), 1<<20) // threshold far above this body
	req := RequestWrapper{
		RefID: 7,
		Type:  RequestEnqueue,
		Enqueue: &EnqueueRequest{
			Payload:              []byte("hello"),
			Priority:             PriorityHigh,
			RequiredCapabilities: []string{"gpu"},
		},
	}
	frame, err := codec.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != flagPlain {
		t.Fatalf("expected plain flag for small body, got %d", frame[0])
	}
	got, err := codec.DecodeRequest(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RefID != req.RefID || got.Enqueue == nil || string(got.Enqueue.Payload) != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCodecCompressesLargeFrames(t *testing.T) {
	codec := NewCodec(NewSnappyCompressor(), 8)
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i)
	}
	resp := ResponseWrapper{
		RefID: 1,
		Type:  ResponsePop,
		Pop:   &PopResponse{HadResult: true, ID: "msg-1", Payload: big},
	}
	frame, err := codec.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != flagCompressed {
		t.Fatalf("expected compressed flag for large body, got %d", frame[0])
	}
	got, err := codec.DecodeResponse(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pop == nil || len(got.Pop.Payload) != len(big) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got.Pop.Payload), len(big))
	}
	for i := range big {
		if got.Pop.Payload[i] != big[i] {
			t.Fatalf("payload byte %d mismatch", i)
		}
	}
}

func TestZstdCompressorRoundTrips(t *testing.T) {
	c, err := NewZstdCompressor()
	if err != nil {
		t.Fatalf("new zstd compressor: %v", err)
	}
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly")
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	out, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("round trip mismatch: got %q", out)
	}
}

func TestCompressorByNameUnknownCodec(t *testing.T) {
	if _, err := CompressorByName("lz4"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
