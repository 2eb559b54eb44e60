// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package collate implements the Collation Check (C10): a layered
// bit-vector oracle that flags whether a spot name has been seen
// before, without storing the names themselves. Below the expected
// spot-count threshold it splits a 64-bit FNV-1a hash and a 64-bit
// MurmurHash64A hash into four 32-bit buckets; above the threshold it
// switches to a SHA-1 digest split into five 32-bit buckets, trading
// bucket count for a lower false-positive rate at larger scale.
package collate

import (
	"crypto/sha1"
	"encoding/binary"
)

const (
	fnvPrime       = 1099511628211
	fnvOffsetBasis = 14695981039346656037

	murmurConst uint64 = 0xc6a4a7935bd1e995
	murmurR            = 47
)

// fnv1a64 is the 64-bit FNV-1a hash, matching hashing.hpp's fnv_1a.
func fnv1a64(v []byte) uint64 {
	var hash uint64 = fnvOffsetBasis
	for _, b := range v {
		hash ^= uint64(b)
		hash *= fnvPrime
	}
	return hash
}

// murmurHash64A is Austin Appleby's MurmurHash64A with seed 0,
// matching hashing.hpp's MurmurHash.
func murmurHash64A(key []byte) uint64 {
	seed := uint64(0)
	h := seed ^ (uint64(len(key)) * murmurConst)

	n := len(key) / 8
	for i := 0; i < n; i++ {
		k := binary.LittleEndian.Uint64(key[i*8 : i*8+8])
		k *= murmurConst
		k ^= k >> murmurR
		k *= murmurConst
		h ^= k
		h *= murmurConst
	}

	tail := key[n*8:]
	switch len(tail) {
	case 7:
		h ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		h ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		h ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		h ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		h ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		h ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		h ^= uint64(tail[0])
		h *= murmurConst
	}

	h ^= h >> murmurR
	h *= murmurConst
	h ^= h >> murmurR
	return h
}

func splitLoHi(h uint64) (lo, hi uint32) {
	return uint32(h), uint32(h >> 32)
}

// sha1Words splits a SHA-1 digest into five big-endian 32-bit words.
func sha1Words(v []byte) [5]uint32 {
	sum := sha1.Sum(v)
	var words [5]uint32
	for i := range words {
		words[i] = binary.BigEndian.Uint32(sum[i*4 : i*4+4])
	}
	return words
}
