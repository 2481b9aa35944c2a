package protocol

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// compressionThresholdBytes is the BSATN-encoded length above which a
// QueryUpdate is compressed rather than sent raw (spec.md §4.9).
const compressionThresholdBytes = 1024

// brotliQuality and brotliWindowBits match spec.md §4.9's compression
// parameters exactly: quality 1 (fastest, lowest ratio) trades compression
// ratio for the latency budget of a live subscription push.
const (
	brotliQuality    = 1
	brotliWindowBits = 22
)

// CompressQueryUpdate wraps qu as Uncompressed if its BSATN encoding
// (encoded) is at or below the threshold, else Brotli-compresses encoded
// and wraps it as CompressableQueryUpdate_Brotli.
func CompressQueryUpdate(qu QueryUpdate, encoded []byte) CompressableQueryUpdate {
	if len(encoded) <= compressionThresholdBytes {
		return CompressableQueryUpdate{Tag: CompressionNone, Uncompressed: &qu}
	}
	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{Quality: brotliQuality, LGWin: brotliWindowBits})
	_, _ = w.Write(encoded)
	_ = w.Close()
	return CompressableQueryUpdate{Tag: CompressionBrotli, Brotli: buf.Bytes()}
}

// DecompressQueryUpdate is CompressQueryUpdate's inverse on the raw bytes
// side: given a Brotli-tagged CompressableQueryUpdate, returns the BSATN
// bytes of the QueryUpdate it wraps, for a caller to decode with whatever
// schema-aware decoder the table in question requires.
func DecompressQueryUpdate(cq CompressableQueryUpdate) ([]byte, error) {
	if cq.Tag != CompressionBrotli {
		return nil, nil
	}
	r := brotli.NewReader(bytes.NewReader(cq.Brotli))
	return io.ReadAll(r)
}
