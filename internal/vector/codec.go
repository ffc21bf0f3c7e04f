package vector

// Codec IDs persisted in the header region (spec §4.5, §6). Stable across
// versions; never renumber.
const (
	CodecRaw           uint16 = 1
	CodecNumericZstd   uint16 = 2
	CodecNumericLZ4    uint16 = 3
)

// Codec is the small enumerated variant set spec §9 "Dynamic dispatch"
// calls for: {encode, decode, element_size} plus the on-disk id/version
// tags, resolved once at the vector boundary, never per element. The page
// element count is not part of the codec; it is configured per Vector.
type Codec[T any] interface {
	// Encode turns a full or partial page of values into its on-disk byte
	// form. Both codecs return a length that is a multiple of ElementSize
	// (raw by construction, compressed by padding).
	Encode(values []T) ([]byte, error)
	// Decode turns encoded bytes for exactly count values back into values.
	Decode(data []byte, count int) ([]T, error)
	// ID is the on-disk codec tag.
	ID() uint16
	// Version is the codec's own format version, independent of the
	// vector's user-facing version tag.
	Version() uint16
	// ElementSize is the in-memory size of one decoded element in bytes,
	// used to size pages and the raw trailing active buffer.
	ElementSize() int
}
