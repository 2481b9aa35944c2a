package commitlog

// Encoder is satisfied by any record type a Commitlog can append; Encode
// returns the bytes persisted for that record (typically a BSATN-encoded
// Txdata, see spec.md §3's Txdata shape).
type Encoder interface {
	Encode() []byte
}

// Decoder turns a record's raw bytes back into T while replaying a log,
// given the segment's declared format version (schema evolution between
// versions is the decoder's responsibility, not this package's).
type Decoder[T any] interface {
	DecodeRecord(version uint8, data []byte) (T, error)
}

// DecoderFunc adapts a plain function to a Decoder.
type DecoderFunc[T any] func(version uint8, data []byte) (T, error)

func (f DecoderFunc[T]) DecodeRecord(version uint8, data []byte) (T, error) {
	return f(version, data)
}
