package p2p

import (
	"context"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/app/appmessage"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

func (na *NetAdapter) Query(ctx context.Context, peer externalapi.ValidatorID,
	transactionIDs []externalapi.DomainTransactionID, wantVote bool) ([]*externalapi.SampleAnswer, error) {

	response, err := na.send(ctx, peer, appmessage.NewMsgSampleQuery(transactionIDs, wantVote))
	if err != nil {
		return nil, err
	}
	sampleResponse, ok := response.(*appmessage.MsgSampleResponse)
	if !ok {
		return nil, errors.Errorf("peer %s answered a sample query with %s", peer, response.Command())
	}
	if len(sampleResponse.Answers) != len(transactionIDs) {
		return nil, errors.Errorf("peer %s answered %d of %d queried transactions",
			peer, len(sampleResponse.Answers), len(transactionIDs))
	}
	return sampleResponse.Answers, nil
}

func (na *NetAdapter) RequestProof(ctx context.Context, peer externalapi.ValidatorID,
	transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {

	response, err := na.send(ctx, peer, appmessage.NewMsgProofRequest(transactionID))
	if err != nil {
		return nil, err
	}
	gossip, ok := response.(*appmessage.MsgProofGossip)
	if !ok {
		return nil, errors.Errorf("peer %s answered a proof request with %s", peer, response.Command())
	}
	if gossip.Proof == nil {
		return nil, errors.Errorf("peer %s holds no proof of %s", peer, transactionID)
	}
	return gossip.Proof, nil
}

func (na *NetAdapter) BroadcastProof(proof *externalapi.FinalityProof) {
	na.broadcast(appmessage.NewMsgProofGossip(proof))
}

func (na *NetAdapter) BroadcastBlock(block *externalapi.CheckpointBlock) {
	na.broadcast(appmessage.NewMsgBlockBroadcast(block))
}

func (na *NetAdapter) RelayTransaction(transaction *externalapi.DomainTransaction) {
	na.broadcast(appmessage.NewMsgTransactionRelay(transaction))
}
