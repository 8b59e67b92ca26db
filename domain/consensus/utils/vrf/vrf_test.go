package vrf

import (
	"bytes"
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

func TestProveAndVerify(t *testing.T) {
	key, err := KeyFromSeed(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("KeyFromSeed: %+v", err)
	}
	publicKey, err := key.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %+v", err)
	}

	input := Input(externalapi.DomainHash{1}, 600, "timed-simnet")
	output, proof := key.Prove(input)

	verifiedOutput, ok := Verify(publicKey, input, proof)
	if !ok {
		t.Fatalf("a valid proof does not verify")
	}
	if verifiedOutput != output {
		t.Fatalf("verified output %s differs from proved output %s", verifiedOutput, output)
	}

	// Evaluation is deterministic.
	againOutput, _ := key.Prove(input)
	if againOutput != output {
		t.Fatalf("VRF output is not deterministic")
	}

	otherInput := Input(externalapi.DomainHash{1}, 1200, "timed-simnet")
	if _, ok := Verify(publicKey, otherInput, proof); ok {
		t.Fatalf("a proof verifies for another slot time")
	}

	other, err := KeyFromSeed(bytes.Repeat([]byte{8}, 32))
	if err != nil {
		t.Fatalf("KeyFromSeed: %+v", err)
	}
	otherPublicKey, _ := other.PublicKey()
	if _, ok := Verify(otherPublicKey, input, proof); ok {
		t.Fatalf("a proof verifies against another key")
	}
}

func TestInputBindsNetwork(t *testing.T) {
	if bytes.Equal(Input(externalapi.ZeroHash, 0, "a"), Input(externalapi.ZeroHash, 0, "b")) {
		t.Fatalf("VRF input ignores the network ID")
	}
}

func TestSerializePrivateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %+v", err)
	}
	serialized, err := key.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %+v", err)
	}
	restored, err := DeserializePrivateKey(serialized)
	if err != nil {
		t.Fatalf("DeserializePrivateKey: %+v", err)
	}
	input := Input(externalapi.ZeroHash, 0, "timed-simnet")
	output, _ := key.Prove(input)
	restoredOutput, _ := restored.Prove(input)
	if output != restoredOutput {
		t.Fatalf("restored key evaluates differently")
	}
}
