package wallet

import (
	"log"

	"github.com/mr-tron/base58"
)

// Base58Encode is used only for human-readable display of a raw public
// key; it is never part of the wire or consensus format.
func Base58Encode(input []byte) []byte {
	return []byte(base58.Encode(input))
}

// Base58Decode is the inverse of Base58Encode.
func Base58Decode(input []byte) []byte {
	decode, err := base58.Decode(string(input))
	if err != nil {
		log.Panic(err)
	}
	return decode
}
