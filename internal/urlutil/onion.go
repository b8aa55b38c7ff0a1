package urlutil

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionSuffix is the pseudo-TLD of Tor onion services.
	OnionSuffix = ".onion"

	onionV3Version = 0x03
)

// onionV3Label matches the 56 base32 characters of a v3 onion label.
var onionV3Label = regexp.MustCompile(`^[a-z2-7]{56}$`)

var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is under the .onion pseudo-TLD.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), OnionSuffix)
}

// IsValidOnionHost validates the service label of an onion host.
//
// Subdomains are allowed ("www.<label>.onion"); only the label directly
// before ".onion" is checked. Labels of 56 characters are verified against
// the v3 checksum, SHA3-256(".onion checksum" || pubkey || version)[:2].
// Other label lengths (including deprecated v2) are rejected.
func IsValidOnionHost(host string) bool {
	host = strings.ToLower(host)
	if !IsOnionHost(host) {
		return false
	}

	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	label := labels[len(labels)-1]
	if !onionV3Label.MatchString(label) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(label))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := onionChecksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	sum := sha3.Sum256(data)
	return sum[:2]
}
