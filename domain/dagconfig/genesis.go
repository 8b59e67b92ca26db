package dagconfig

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// treasuryID is the reward ledger account of the network treasury. It is
// not the hash of any public key, so no validator can sign as it.
var treasuryID = externalapi.ValidatorID{
	0x74, 0x69, 0x6d, 0x65, 0x64, 0x2d, 0x74, 0x72,
	0x65, 0x61, 0x73, 0x75, 0x72, 0x79, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
}

// genesisScriptPublicKey locks the testing networks' genesis outputs. Scripts
// are not evaluated by the finality layer; the value only makes the
// outputs distinguishable in explorers.
var genesisScriptPublicKey = []byte{0x51}

var mainnetGenesisOutputs = []*externalapi.DomainTransactionOutput{
	{Value: 1_000_000 * UnitsPerTime, ScriptPublicKey: []byte{0x6a}},
}

var testnetGenesisOutputs = repeatOutputs(16, 10_000*UnitsPerTime)

var simnetGenesisOutputs = repeatOutputs(64, 1_000*UnitsPerTime)

var devnetGenesisOutputs = repeatOutputs(64, 1_000*UnitsPerTime)

func repeatOutputs(count int, value uint64) []*externalapi.DomainTransactionOutput {
	outputs := make([]*externalapi.DomainTransactionOutput, count)
	for i := range outputs {
		outputs[i] = &externalapi.DomainTransactionOutput{
			Value:           value,
			ScriptPublicKey: genesisScriptPublicKey,
		}
	}
	return outputs
}

// GenesisTransaction returns the input-less transaction whose outputs
// seed the network's UTXO set. The payload binds it to the network so
// that genesis outpoints differ between networks.
func (p *Params) GenesisTransaction() *externalapi.DomainTransaction {
	outputs := make([]*externalapi.DomainTransactionOutput, len(p.GenesisOutputs))
	for i, output := range p.GenesisOutputs {
		outputs[i] = &externalapi.DomainTransactionOutput{
			Value:           output.Value,
			ScriptPublicKey: append([]byte(nil), output.ScriptPublicKey...),
		}
	}
	return &externalapi.DomainTransaction{
		Version: 0,
		Inputs:  []*externalapi.DomainTransactionInput{},
		Outputs: outputs,
		Payload: []byte(p.NetworkID),
	}
}

// GenesisOutpoints returns the outpoints of the genesis transaction's
// outputs, in output order.
func (p *Params) GenesisOutpoints() []externalapi.DomainOutpoint {
	genesisID := consensushashing.TransactionID(p.GenesisTransaction())
	outpoints := make([]externalapi.DomainOutpoint, len(p.GenesisOutputs))
	for i := range outpoints {
		outpoints[i] = externalapi.DomainOutpoint{TransactionID: genesisID, Index: uint32(i)}
	}
	return outpoints
}
