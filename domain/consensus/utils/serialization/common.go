package serialization

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// MaxVarBytesLength bounds any length-prefixed field read from the wire.
const MaxVarBytesLength = 1 << 24

// errNoEncodingForType signifies that there's no encoding for the given type.
var errNoEncodingForType = errors.New("there's no encoding for this type")

// ErrMalformed is returned when the bytes being read are not a valid encoding.
var ErrMalformed = errors.New("malformed serialization")

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	var scratch [8]byte
	switch e := element.(type) {
	case uint8:
		scratch[0] = e
		return write(w, scratch[:1])

	case bool:
		if e {
			scratch[0] = 0x01
		}
		return write(w, scratch[:1])

	case uint16:
		binary.LittleEndian.PutUint16(scratch[:2], e)
		return write(w, scratch[:2])

	case uint32:
		binary.LittleEndian.PutUint32(scratch[:4], e)
		return write(w, scratch[:4])

	case uint64:
		binary.LittleEndian.PutUint64(scratch[:], e)
		return write(w, scratch[:])

	case int64:
		binary.LittleEndian.PutUint64(scratch[:], uint64(e))
		return write(w, scratch[:])

	case externalapi.DomainHash:
		return write(w, e[:])

	case externalapi.DomainTransactionID:
		return write(w, e[:])

	case externalapi.ValidatorID:
		return write(w, e[:])

	case externalapi.DomainOutpoint:
		err := write(w, e.TransactionID[:])
		if err != nil {
			return err
		}
		return WriteElement(w, e.Index)

	case []byte:
		err := WriteElement(w, uint64(len(e)))
		if err != nil {
			return err
		}
		return write(w, e)

	case externalapi.NetworkID:
		return WriteElement(w, []byte(e))
	}

	return errors.Wrapf(errNoEncodingForType, "couldn't find a way to write type %T", element)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func ReadElement(r io.Reader, element interface{}) error {
	var scratch [8]byte
	switch e := element.(type) {
	case *uint8:
		err := read(r, scratch[:1])
		if err != nil {
			return err
		}
		*e = scratch[0]
		return nil

	case *bool:
		err := read(r, scratch[:1])
		if err != nil {
			return err
		}
		switch scratch[0] {
		case 0x00:
			*e = false
		case 0x01:
			*e = true
		default:
			return errors.Wrapf(ErrMalformed, "invalid bool byte %d", scratch[0])
		}
		return nil

	case *uint16:
		err := read(r, scratch[:2])
		if err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint16(scratch[:2])
		return nil

	case *uint32:
		err := read(r, scratch[:4])
		if err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint32(scratch[:4])
		return nil

	case *uint64:
		err := read(r, scratch[:])
		if err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint64(scratch[:])
		return nil

	case *int64:
		err := read(r, scratch[:])
		if err != nil {
			return err
		}
		*e = int64(binary.LittleEndian.Uint64(scratch[:]))
		return nil

	case *externalapi.DomainHash:
		return read(r, e[:])

	case *externalapi.DomainTransactionID:
		return read(r, e[:])

	case *externalapi.ValidatorID:
		return read(r, e[:])

	case *externalapi.DomainOutpoint:
		err := read(r, e.TransactionID[:])
		if err != nil {
			return err
		}
		return ReadElement(r, &e.Index)

	case *[]byte:
		var length uint64
		err := ReadElement(r, &length)
		if err != nil {
			return err
		}
		if length > MaxVarBytesLength {
			return errors.Wrapf(ErrMalformed, "byte field of length %d exceeds %d", length, MaxVarBytesLength)
		}
		if length == 0 {
			*e = nil
			return nil
		}
		buf := make([]byte, length)
		err = read(r, buf)
		if err != nil {
			return err
		}
		*e = buf
		return nil

	case *externalapi.NetworkID:
		var raw []byte
		err := ReadElement(r, &raw)
		if err != nil {
			return err
		}
		*e = externalapi.NetworkID(raw)
		return nil
	}

	return errors.Wrapf(errNoEncodingForType, "couldn't find a way to read type %T", element)
}

// ReadElements reads multiple items from r. It is equivalent to multiple
// calls to ReadElement.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadCount reads a collection length and rejects lengths above max.
func ReadCount(r io.Reader, max uint64) (uint64, error) {
	var count uint64
	err := ReadElement(r, &count)
	if err != nil {
		return 0, err
	}
	if count > max {
		return 0, errors.Wrapf(ErrMalformed, "collection of %d items exceeds %d", count, max)
	}
	return count, nil
}

func write(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	return errors.WithStack(err)
}

func read(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Wrap(ErrMalformed, "unexpected end of data")
		}
		return errors.WithStack(err)
	}
	return nil
}
