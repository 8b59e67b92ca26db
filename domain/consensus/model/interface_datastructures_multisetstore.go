package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// MultisetStore represents a store of serialized archive multisets, keyed
// by the hash of the checkpoint block whose archival they include
type MultisetStore interface {
	Put(blockHash externalapi.DomainHash, multisetBytes []byte) error
	Get(blockHash externalapi.DomainHash) ([]byte, bool, error)
}
