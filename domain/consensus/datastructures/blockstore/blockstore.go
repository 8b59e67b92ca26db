package blockstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var (
	blocksBucket  = database.MakeBucket([]byte("blocks"))
	heightsBucket = database.MakeBucket([]byte("block-heights"))
	tipKey        = database.MakeBucket(nil).Key([]byte("block-tip"))
)

// maxDecompressedBlockSize bounds the memory a single stored block may
// decompress to.
const maxDecompressedBlockSize = 256 << 20

// blockStore represents a store of checkpoint blocks. Blocks are keyed by
// height and stored zstd-compressed; a hash index maps block hashes to
// heights.
type blockStore struct {
	db      database.Database
	cache   *lru.Cache
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	tipLock   sync.RWMutex
	tipHeight uint64
	hasTip    bool
}

// New instantiates a new BlockStore
func New(db database.Database, cacheSize int) (model.BlockStore, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedBlockSize))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bs := &blockStore{db: db, cache: cache, encoder: encoder, decoder: decoder}

	err = bs.initializeTip()
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *blockStore) initializeTip() error {
	tipBytes, err := bs.db.Get(tipKey)
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	bs.tipHeight, err = serialization.KeyToUint64(tipBytes)
	if err != nil {
		return err
	}
	bs.hasTip = true
	return nil
}

func (bs *blockStore) AppendBlock(block *externalapi.CheckpointBlock) error {
	bs.tipLock.Lock()
	defer bs.tipLock.Unlock()

	blockHash := consensushashing.BlockHash(block.Header)
	exists, err := bs.db.Has(blocksBucket.Key(blockHash[:]))
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s is already stored", blockHash)
	}

	// Height 0 is the implicit genesis checkpoint, which is never stored.
	expectedHeight := bs.tipHeight + 1
	if block.Header.Height != expectedHeight {
		return errors.Wrapf(ruleerrors.ErrUnexpectedHeight, "cannot append block at height %d, "+
			"expected height %d", block.Header.Height, expectedHeight)
	}

	heightKey := serialization.Uint64ToKey(block.Header.Height)
	compressed := bs.encoder.EncodeAll(serialization.CheckpointBlockToBytes(block), nil)

	dbTx, err := bs.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbTx.Put(heightsBucket.Key(heightKey), compressed)
	if err != nil {
		return err
	}
	err = dbTx.Put(blocksBucket.Key(blockHash[:]), heightKey)
	if err != nil {
		return err
	}
	err = dbTx.Put(tipKey, heightKey)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}

	bs.tipHeight = block.Header.Height
	bs.hasTip = true
	bs.cache.Add(block.Header.Height, block)
	return nil
}

func (bs *blockStore) Block(height uint64) (*externalapi.CheckpointBlock, error) {
	if block, ok := bs.cache.Get(height); ok {
		return block.(*externalapi.CheckpointBlock), nil
	}

	compressed, err := bs.db.Get(heightsBucket.Key(serialization.Uint64ToKey(height)))
	if err != nil {
		return nil, err
	}
	blockBytes, err := bs.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress block at height %d", height)
	}
	block, err := serialization.BytesToCheckpointBlock(blockBytes)
	if err != nil {
		return nil, err
	}
	bs.cache.Add(height, block)
	return block, nil
}

func (bs *blockStore) BlockByHash(blockHash externalapi.DomainHash) (*externalapi.CheckpointBlock, error) {
	heightBytes, err := bs.db.Get(blocksBucket.Key(blockHash[:]))
	if err != nil {
		return nil, err
	}
	height, err := serialization.KeyToUint64(heightBytes)
	if err != nil {
		return nil, err
	}
	return bs.Block(height)
}

func (bs *blockStore) HasBlock(blockHash externalapi.DomainHash) (bool, error) {
	return bs.db.Has(blocksBucket.Key(blockHash[:]))
}

func (bs *blockStore) Tip() (*externalapi.CheckpointBlock, bool, error) {
	bs.tipLock.RLock()
	height, hasTip := bs.tipHeight, bs.hasTip
	bs.tipLock.RUnlock()

	if !hasTip {
		return nil, false, nil
	}
	block, err := bs.Block(height)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}
