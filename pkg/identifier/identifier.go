package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eknkc/basex"

	"github.com/treemerge-io/treemerge/pkg/random"
)

const (
	// PrefixGenerated is the prefix used for synthesized node identifiers.
	// Author-supplied identifiers that start with this prefix followed by
	// the underscore separator are rejected at parse time, so synthesized
	// identifiers can't collide with them.
	PrefixGenerated = "gnid"

	// base62Alphabet is the alphabet used to encode identifier payloads.
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes needed to ensure
	// collision-resistance in an identifier.
	collisionResistantLength = 32
	// targetBase62Length is the target length for the Base62-encoded portion of
	// the identifier. This is set to the maximum possible length that a byte
	// array of collisionResistantLength bytes will take to encode in Base62
	// encoding. This length can be computed for n bytes using the formula
	// ceil(n*8*ln(2)/ln(62))).
	targetBase62Length = 43
)

// base62 is the payload encoder. Construction can only fail if the alphabet
// is malformed, so any error is surfaced on the first generation attempt.
var base62, base62Err = basex.NewEncoding(base62Alphabet)

// matcher is a regular expression that matches synthesized identifiers.
var matcher = regexp.MustCompile("^[a-z]{4}_[0-9a-zA-Z]{43}$")

// New generates a new collision-resistant identifier with the specified
// prefix. The prefix must be requiredPrefixLength lowercase letters.
func New(prefix string) (string, error) {
	// Ensure that the payload encoder is functional.
	if base62Err != nil {
		return "", fmt.Errorf("unable to initialize payload encoder: %w", base62Err)
	}

	// Ensure that the prefix length is correct.
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}

	// Ensure that each prefix character is allowed.
	for _, r := range prefix {
		if !('a' <= r && r <= 'z') {
			return "", errors.New("invalid prefix character")
		}
	}

	// Create the random value.
	random, err := random.New(collisionResistantLength)
	if err != nil {
		return "", err
	}

	// Encode the random value using a Base62 encoding scheme. As a sanity
	// check, ensure that the encoded value doesn't exceed the target length.
	encoded := base62.Encode(random)
	if len(encoded) > targetBase62Length {
		panic("encoded random data length longer than expected")
	}

	// Create a string builder.
	builder := &strings.Builder{}

	// Add the identifier prefix.
	builder.WriteString(prefix)

	// Add the separator.
	builder.WriteRune('_')

	// If the encoded value has a length less than the target length, then
	// left-pad it with 0s. Actually, we technically pad it using whatever the
	// zero value is in our Base62 alphabet, but that happens to be '0'.
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(base62Alphabet[0])
	}

	// Write the encoded value.
	builder.WriteString(encoded)

	// Success.
	return builder.String(), nil
}

// NewGenerated generates a new synthesized node identifier.
func NewGenerated() (string, error) {
	return New(PrefixGenerated)
}

// IsGenerated determines whether or not an identifier was synthesized (as
// opposed to author-supplied). Serializers use this to suppress synthesized
// identifiers on output.
func IsGenerated(value string) bool {
	return strings.HasPrefix(value, PrefixGenerated+"_")
}

// IsValid determines whether or not a string is a well-formed synthesized
// identifier.
func IsValid(value string) bool {
	return matcher.MatchString(value) && IsGenerated(value)
}
