package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// BlockStore represents a store of checkpoint blocks
type BlockStore interface {
	// AppendBlock stores block as the new tip. Its height must be the
	// current tip height plus one.
	AppendBlock(block *externalapi.CheckpointBlock) error
	Block(height uint64) (*externalapi.CheckpointBlock, error)
	BlockByHash(blockHash externalapi.DomainHash) (*externalapi.CheckpointBlock, error)
	HasBlock(blockHash externalapi.DomainHash) (bool, error)

	// Tip returns the latest block, or false if no block was appended yet.
	Tip() (*externalapi.CheckpointBlock, bool, error)
}
