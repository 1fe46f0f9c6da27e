// Package idmap translates listing on-chain ids into registry indices.
//
// Listing ids are 1-based ordinals handed out by the store. The registry keeps
// its entries in a 0-based array, so the registry index of a listing is always
// its on-chain id minus one. Every caller that talks to the registry goes
// through this package.
package idmap

import (
	"farmrent/internal/apperr"
	"farmrent/internal/models"
)

// Offset between a listing's on-chain id and its registry index.
const Offset = 1

// ErrUnmapped is returned for listings that carry no usable on-chain id.
var ErrUnmapped = apperr.Define(apperr.ErrConfiguration, "listing has no on-chain id")

// ResolveOnChainIndex returns the registry index for a listing.
func ResolveOnChainIndex(listing *models.Listing) (uint64, error) {
	if listing == nil {
		return 0, ErrUnmapped
	}
	return Resolve(listing.OnChainID)
}

// Resolve maps an on-chain id to a registry index.
func Resolve(onChainID int64) (uint64, error) {
	if onChainID < Offset {
		return 0, apperr.Wrap(apperr.ErrConfiguration, ErrUnmapped, "on-chain id %d", onChainID)
	}
	return uint64(onChainID - Offset), nil
}

// ToOnChainID is the inverse of Resolve.
func ToOnChainID(index uint64) int64 {
	return int64(index) + Offset
}
