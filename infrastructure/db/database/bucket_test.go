package database

import (
	"bytes"
	"testing"
)

func TestBucketPath(t *testing.T) {
	tests := []struct {
		bucketByteSlices [][]byte
		expectedPath     []byte
	}{
		{
			bucketByteSlices: [][]byte{[]byte("hello")},
			expectedPath:     []byte("hello/"),
		},
		{
			bucketByteSlices: [][]byte{[]byte("hello"), []byte("world")},
			expectedPath:     []byte("hello/world/"),
		},
	}

	for _, test := range tests {
		resultBucket := MakeBucket(test.bucketByteSlices...)
		if !bytes.Equal(resultBucket.Path(), test.expectedPath) {
			t.Errorf("TestBucketPath: got wrong path using MakeBucket. "+
				"Want: %s, got: %s", string(test.expectedPath), string(resultBucket.Path()))
		}

		resultBucket = MakeBucket()
		for _, bucketBytes := range test.bucketByteSlices {
			resultBucket = resultBucket.Bucket(bucketBytes)
		}
		if !bytes.Equal(resultBucket.Path(), test.expectedPath) {
			t.Errorf("TestBucketPath: got wrong path using sub-buckets. "+
				"Want: %s, got: %s", string(test.expectedPath), string(resultBucket.Path()))
		}
	}
}

func TestBucketKey(t *testing.T) {
	key := MakeBucket([]byte("utxo-states")).Key([]byte("outpoint"))
	if !bytes.Equal(key.Bytes(), []byte("utxo-states/outpoint")) {
		t.Fatalf("TestBucketKey: unexpected key bytes %s", string(key.Bytes()))
	}
	if !bytes.Equal(key.Suffix(), []byte("outpoint")) {
		t.Fatalf("TestBucketKey: unexpected suffix %s", string(key.Suffix()))
	}
}
