package dispatch

// Well-known metadata keys attached to outbound calls. Per-call header
// content is concatenated into a single value under HeaderKey; calls with no
// header content go out unmodified.
const (
	// HeaderKey carries the composed per-call header string.
	HeaderKey = "headers"

	// sequencePrefix precedes the static sequence label inside the composed
	// header value.
	sequencePrefix = "sequence:"
)

// composeHeader builds the single header value from the dispatcher's static
// sequence label and the per-call dynamic value. When both are present the
// label comes first, comma-separated. Returns "" when neither is present.
func composeHeader(sequence, dynamic string) string {
	switch {
	case sequence != "" && dynamic != "":
		return sequencePrefix + sequence + "," + dynamic
	case sequence != "":
		return sequencePrefix + sequence
	default:
		return dynamic
	}
}
