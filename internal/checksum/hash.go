package checksum

import (
	"github.com/cespare/xxhash/v2"
	"github.com/minio/highwayhash"
)

// U128 identifies bitmap index entries.
type U128 [16]byte

// key is fixed so entry ids are stable across processes.
var key = []byte("lbm bitmap index entry hash key.")

// Hash returns uint64 xxhash checksum of data. Used to verify stored pages.
func Hash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Sum returns the 128 bit id of an entry key.
func Sum(data []byte) U128 {
	return highwayhash.Sum128(data, key)
}
