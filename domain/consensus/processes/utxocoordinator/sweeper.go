package utxocoordinator

import (
	"time"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const minSweepInterval = time.Second

func (c *utxoCoordinator) sweepInterval() time.Duration {
	interval := c.params.ReservationTTL / 4
	if interval < minSweepInterval {
		return minSweepInterval
	}
	return interval
}

func (c *utxoCoordinator) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			swept, err := c.sweepExpiredReservations()
			if err != nil {
				log.Errorf("Error sweeping expired reservations: %+v", err)
				continue
			}
			if swept > 0 {
				log.Debugf("Released %d expired reservations", swept)
			}
		}
	}
}

// sweepExpiredReservations releases every reservation older than the
// reservation TTL and returns how many were released.
func (c *utxoCoordinator) sweepExpiredReservations() (int, error) {
	deadline := c.clock.Now().Add(-c.params.ReservationTTL).Unix()

	type expiredReservation struct {
		outpoint      externalapi.DomainOutpoint
		transactionID externalapi.DomainTransactionID
	}
	var expired []expiredReservation
	c.reservationsLock.Lock()
	for outpoint, reservation := range c.reservations {
		if reservation.reservedAt <= deadline {
			expired = append(expired, expiredReservation{outpoint, reservation.transactionID})
		}
	}
	c.reservationsLock.Unlock()

	swept := 0
	for _, reservation := range expired {
		released, err := c.releaseIfExpired(reservation.outpoint, reservation.transactionID, deadline)
		if err != nil {
			return swept, err
		}
		if released {
			swept++
		}
	}
	c.metrics.ReservationsSwept.Add(float64(swept))
	return swept, nil
}

func (c *utxoCoordinator) releaseIfExpired(outpoint externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID, deadline int64) (bool, error) {

	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	state, found, err := c.utxoStore.GetOutputState(outpoint)
	if err != nil {
		return false, err
	}
	if !found || state.Status != externalapi.UTXOStatusReserved ||
		state.SpenderID != transactionID || state.ReservedAt > deadline {
		// The reservation changed since it was listed.
		return false, nil
	}
	return true, c.release(s, outpoint, transactionID)
}
