package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// Edition is the version number of a versioned key. Unknown marks "no edition
// known yet".
type Edition int64

// Unknown is the sentinel edition used before anything has been observed.
const Unknown Edition = -1

// Known reports whether e is a real edition number.
func (e Edition) Known() bool { return e >= 0 }

func (e Edition) String() string {
	if e == Unknown {
		return "unknown"
	}
	return strconv.FormatInt(int64(e), 10)
}

// ErrMalformedKey is returned by ParseKey for anything that is not a USK URI.
var ErrMalformedKey = errors.New("types: malformed key")

const (
	uskPrefix    = "USK@"
	sskPrefix    = "SSK@"
	schemePrefix = "freenet:"
)

// clearKeyDomain is the BLAKE3 key used for ClearKey digests. The bytes are
// the ASCII domain name zero-padded to 32 bytes.
var clearKeyDomain = [32]byte{
	'f', 'r', 'e', 's', 'h', 'w', 'a', 't', 'c', 'h', '.', 'c', 'l', 'e', 'a', 'r',
	'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ClearKey is a versioned key with the edition stripped. It is comparable and
// is the sole index for per-key state.
type ClearKey struct {
	RoutingKey string
	DocName    string
}

// At returns the versioned key for edition ed.
func (k ClearKey) At(ed Edition) Key {
	return Key{ClearKey: k, Edition: ed}
}

// String returns the edition-less form USK@<routing>/<docname>.
func (k ClearKey) String() string {
	return uskPrefix + k.RoutingKey + "/" + k.DocName
}

// SlotURI addresses the single block that holds edition ed.
func (k ClearKey) SlotURI(ed Edition) string {
	return sskPrefix + k.RoutingKey + "/" + k.DocName + "-" + strconv.FormatInt(int64(ed), 10)
}

// ID returns a short stable digest of the key, suitable for log fields,
// metric labels and URL paths.
func (k ClearKey) ID() string {
	hasher, err := blake3.NewKeyed(clearKeyDomain[:])
	if err != nil {
		// Only returned for a wrong key length, which the array type rules out.
		panic("types: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(k.RoutingKey))
	hasher.Write([]byte{0})
	hasher.Write([]byte(k.DocName))
	return hex.EncodeToString(hasher.Sum(nil)[:16])
}

// Key is a versioned key at a specific (suggested) edition.
type Key struct {
	ClearKey
	Edition Edition
}

// Clear returns the edition-less identity of k.
func (k Key) Clear() ClearKey { return k.ClearKey }

// URI returns USK@<routing>/<docname>/<edition>.
func (k Key) URI() string {
	return k.ClearKey.String() + "/" + strconv.FormatInt(int64(k.Edition), 10)
}

func (k Key) String() string { return k.URI() }

// ParseKey parses USK@<routing>/<docname>/<edition>, optionally prefixed with
// "freenet:". A missing edition parses as Unknown.
func ParseKey(s string) (Key, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, schemePrefix)
	if !strings.HasPrefix(raw, uskPrefix) {
		return Key{}, fmt.Errorf("%w: %q: want %s prefix", ErrMalformedKey, s, uskPrefix)
	}
	parts := strings.Split(strings.TrimPrefix(raw, uskPrefix), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("%w: %q: want USK@<routing>/<docname>/<edition>", ErrMalformedKey, s)
	}
	if parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("%w: %q: empty routing key or document name", ErrMalformedKey, s)
	}

	k := Key{
		ClearKey: ClearKey{RoutingKey: parts[0], DocName: parts[1]},
		Edition:  Unknown,
	}
	if len(parts) == 3 && parts[2] != "" {
		n, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: edition: %v", ErrMalformedKey, s, err)
		}
		k.Edition = Edition(n)
	}
	return k, nil
}
