package anomalydetector

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/metrics"
)

type proofRecord struct {
	proof  *externalapi.FinalityProof
	weight uint64
}

// provenTransaction is every proof seen for one transaction, in the order
// they were seen.
type provenTransaction struct {
	transactionID externalapi.DomainTransactionID
	inputs        []externalapi.DomainOutpoint
	records       []*proofRecord
}

// best returns the heaviest proof, the earliest seen among equals.
func (pt *provenTransaction) best() *proofRecord {
	best := pt.records[0]
	for _, record := range pt.records[1:] {
		if record.weight > best.weight {
			best = record
		}
	}
	return best
}

// beats returns whether pt wins a conflict against other: strictly
// greater weight, then the lower transaction ID.
func (pt *provenTransaction) beats(other *provenTransaction) bool {
	weight, otherWeight := pt.best().weight, other.best().weight
	if weight != otherWeight {
		return weight > otherWeight
	}
	return pt.transactionID.Less(other.transactionID)
}

type anomalyDetector struct {
	params  *dagconfig.Params
	clock   model.Clock
	metrics *metrics.Metrics

	lock sync.RWMutex

	proven   map[externalapi.DomainTransactionID]*provenTransaction
	spenders map[externalapi.DomainOutpoint][]*provenTransaction

	anomalies       []*externalapi.Anomaly
	inclusionPaused bool

	votes       map[voteKey]*externalapi.SignedVote
	evidence    []*externalapi.EquivocationEvidence
	prunedBelow uint64
}

// New instantiates a new AnomalyDetector
func New(params *dagconfig.Params, clock model.Clock, metrics *metrics.Metrics) model.AnomalyDetector {
	return &anomalyDetector{
		params:   params,
		clock:    clock,
		metrics:  metrics,
		proven:   make(map[externalapi.DomainTransactionID]*provenTransaction),
		spenders: make(map[externalapi.DomainOutpoint][]*provenTransaction),
		votes:    make(map[voteKey]*externalapi.SignedVote),
	}
}

// RecordProof registers a verified proof. A second proof of a proven
// transaction raises a DuplicateProof anomaly; a proof of a transaction
// that shares an input with a proven transaction raises a SafetyViolation
// anomaly and pauses block inclusion.
func (ad *anomalyDetector) RecordProof(proof *externalapi.FinalityProof, weight uint64) (bool, *externalapi.Anomaly) {
	ad.lock.Lock()
	defer ad.lock.Unlock()

	transactionID := consensushashing.TransactionID(proof.Transaction)
	record := &proofRecord{proof: proof, weight: weight}

	if pt, ok := ad.proven[transactionID]; ok {
		for _, existing := range pt.records {
			if consensushashing.FinalityProofHash(existing.proof) == consensushashing.FinalityProofHash(proof) {
				return ad.isCanonical(pt), nil
			}
		}
		pt.records = append(pt.records, record)

		weights := make([]uint64, len(pt.records))
		for i, existing := range pt.records {
			weights[i] = existing.weight
		}
		anomaly := &externalapi.Anomaly{
			Kind:           externalapi.AnomalyDuplicateProof,
			TransactionIDs: []externalapi.DomainTransactionID{transactionID},
			Weights:        weights,
			Canonical:      transactionID,
			DetectedAt:     ad.clock.Now().Unix(),
		}
		ad.addAnomaly(anomaly)
		log.Debugf("Proof %d of %s seen with weight %d", len(pt.records), transactionID, weight)
		return ad.isCanonical(pt), anomaly
	}

	pt := &provenTransaction{
		transactionID: transactionID,
		inputs:        proof.Transaction.Outpoints(),
		records:       []*proofRecord{record},
	}
	ad.proven[transactionID] = pt

	var anomaly *externalapi.Anomaly
	for _, outpoint := range pt.inputs {
		existing := ad.spenders[outpoint]
		ad.spenders[outpoint] = append(existing, pt)
		if len(existing) == 0 || anomaly != nil {
			continue
		}
		anomaly = ad.safetyViolation(outpoint, ad.spenders[outpoint])
	}
	if anomaly != nil {
		ad.addAnomaly(anomaly)
		ad.inclusionPaused = true
		ad.metrics.InclusionPausedGauge.Set(1)
		log.Criticalf("SAFETY VIOLATION on %s: %d proven transactions %v with weights %v, "+
			"canonical %s. Block inclusion is paused until acknowledged",
			anomaly.Outpoint, len(anomaly.TransactionIDs), anomaly.TransactionIDs, anomaly.Weights,
			anomaly.Canonical)
	}
	return ad.isCanonical(pt), anomaly
}

func (ad *anomalyDetector) safetyViolation(outpoint externalapi.DomainOutpoint,
	spenders []*provenTransaction) *externalapi.Anomaly {

	anomaly := &externalapi.Anomaly{
		Kind:           externalapi.AnomalySafetyViolation,
		Outpoint:       outpoint,
		TransactionIDs: make([]externalapi.DomainTransactionID, len(spenders)),
		Weights:        make([]uint64, len(spenders)),
		DetectedAt:     ad.clock.Now().Unix(),
	}
	winner := spenders[0]
	for i, spender := range spenders {
		anomaly.TransactionIDs[i] = spender.transactionID
		anomaly.Weights[i] = spender.best().weight
		if spender.beats(winner) {
			winner = spender
		}
	}
	anomaly.Canonical = winner.transactionID
	return anomaly
}

func (ad *anomalyDetector) addAnomaly(anomaly *externalapi.Anomaly) {
	ad.anomalies = append(ad.anomalies, anomaly)
	ad.metrics.Anomalies.WithLabelValues(anomaly.Kind.String()).Inc()
}

// isCanonical returns whether pt wins on every input it shares with
// another proven transaction.
func (ad *anomalyDetector) isCanonical(pt *provenTransaction) bool {
	for _, outpoint := range pt.inputs {
		for _, other := range ad.spenders[outpoint] {
			if other != pt && other.beats(pt) {
				return false
			}
		}
	}
	return true
}

// IsCanonical returns false only for a proven transaction that loses a
// conflict. Transactions without a recorded proof are not in conflict.
func (ad *anomalyDetector) IsCanonical(transactionID externalapi.DomainTransactionID) bool {
	ad.lock.RLock()
	defer ad.lock.RUnlock()

	pt, ok := ad.proven[transactionID]
	if !ok {
		return true
	}
	return ad.isCanonical(pt)
}

// conflictGroup returns every proven transaction transitively sharing an
// input with pt, pt included.
func (ad *anomalyDetector) conflictGroup(pt *provenTransaction) map[externalapi.DomainTransactionID]*provenTransaction {
	group := map[externalapi.DomainTransactionID]*provenTransaction{pt.transactionID: pt}
	queue := []*provenTransaction{pt}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, outpoint := range current.inputs {
			for _, spender := range ad.spenders[outpoint] {
				if _, ok := group[spender.transactionID]; ok {
					continue
				}
				group[spender.transactionID] = spender
				queue = append(queue, spender)
			}
		}
	}
	return group
}

func (ad *anomalyDetector) Resolve(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {
	ad.lock.Lock()
	defer ad.lock.Unlock()

	pt, ok := ad.proven[transactionID]
	if !ok {
		return nil, errors.Errorf("no proof of %s was recorded", transactionID)
	}
	group := ad.conflictGroup(pt)
	winner := pt
	for _, member := range group {
		if member.beats(winner) {
			winner = member
		}
	}
	for _, anomaly := range ad.anomalies {
		for _, involved := range anomaly.TransactionIDs {
			if _, ok := group[involved]; ok {
				anomaly.Resolved = true
				break
			}
		}
	}
	return winner.best().proof, nil
}

func (ad *anomalyDetector) Anomalies() []*externalapi.Anomaly {
	ad.lock.RLock()
	defer ad.lock.RUnlock()

	anomalies := make([]*externalapi.Anomaly, len(ad.anomalies))
	for i, anomaly := range ad.anomalies {
		clone := *anomaly
		clone.TransactionIDs = append([]externalapi.DomainTransactionID(nil), anomaly.TransactionIDs...)
		clone.Weights = append([]uint64(nil), anomaly.Weights...)
		anomalies[i] = &clone
	}
	return anomalies
}

func (ad *anomalyDetector) InclusionPaused() bool {
	ad.lock.RLock()
	defer ad.lock.RUnlock()
	return ad.inclusionPaused
}

func (ad *anomalyDetector) AcknowledgeSafetyViolation() {
	ad.lock.Lock()
	defer ad.lock.Unlock()

	if !ad.inclusionPaused {
		return
	}
	ad.inclusionPaused = false
	ad.metrics.InclusionPausedGauge.Set(0)
	log.Warnf("Safety violation acknowledged, resuming block inclusion")
}
