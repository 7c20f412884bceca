package polkadot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/vietddude/todochain/internal/core/domain"
)

// SS58 address prefixes of the supported relay chains.
var ss58Prefixes = map[domain.Network]uint16{
	domain.PolkadotMainnet: 0,
	domain.PolkadotTestnet: 42,
}

var ss58Context = []byte("SS58PRE")

// decodeSS58 returns the address prefix and 32-byte account id.
func decodeSS58(addr string) (uint16, []byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 2 {
		return 0, nil, errors.New("address too short")
	}

	var prefix uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		prefixLen = 2
		prefix = uint16(raw[0]&0x3f)<<2 | uint16(raw[1])>>6 | uint16(raw[1]&0x3f)<<8
	default:
		return 0, nil, fmt.Errorf("reserved prefix byte %d", raw[0])
	}

	if len(raw) != prefixLen+32+2 {
		return 0, nil, fmt.Errorf("unexpected address length %d", len(raw))
	}
	body := raw[:len(raw)-2]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum, raw[len(raw)-2:]) {
		return 0, nil, errors.New("checksum mismatch")
	}
	return prefix, raw[prefixLen : prefixLen+32], nil
}

// encodeSS58 renders a 32-byte account id with prefix.
func encodeSS58(prefix uint16, account []byte) string {
	var body []byte
	if prefix < 64 {
		body = append(body, byte(prefix))
	} else {
		body = append(body,
			byte((prefix&0xfc)>>2)|0x40,
			byte(prefix>>8)|byte(prefix&0x03)<<6,
		)
	}
	body = append(body, account...)
	return base58.Encode(append(body, ss58Checksum(body)...))
}

func ss58Checksum(body []byte) []byte {
	h := blake2b.Sum512(append(append([]byte{}, ss58Context...), body...))
	return h[:2]
}

// addressNormalizer accepts any valid SS58 account and re-encodes it with
// the network's prefix.
func addressNormalizer(network domain.Network) func(string) (string, error) {
	prefix := ss58Prefixes[network]
	return func(addr string) (string, error) {
		_, account, err := decodeSS58(addr)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", addr, err)
		}
		return encodeSS58(prefix, account), nil
	}
}
