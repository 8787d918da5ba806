package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// DHTMsgType identifies a DHT wire message, per spec.md §6.
type DHTMsgType uint8

// DHT message types.
const (
	Create DHTMsgType = iota
	Read
	Update
	Delete
	CreateRsp
	ReadRsp
	UpdateRsp
	DeleteRsp
	SyncBegin
)

// Flag bits controlling which optional payload fields are present.
const (
	FlagKey     uint8 = 0x80
	FlagVal     uint8 = 0x40
	FlagStatus  uint8 = 0x20
	FlagReplica uint8 = 0x10
)

const (
	dhtProto   = 0xDB
	dhtVersion = 0x01
	headerSize = 20
)

// Status values carried in the optional status byte.
const (
	StatusOK   uint8 = 0
	StatusFail uint8 = 1
)

// KV is a single (key, value) pair carried in a SYNC_BEGIN replica batch.
type KV struct {
	Key   string
	Value string
}

// Message is the in-memory representation of one DHT wire message. Only
// the fields relevant to its flags are meaningful; HasX booleans record
// which optional fields are present so an absent empty string can be
// distinguished from a present empty string.
type Message struct {
	Type        DHTMsgType
	Transaction uint32
	SrcID       int32
	SrcPort     int16

	HasStatus bool
	Status    uint8

	HasKey bool
	Key    string

	HasValue bool
	Value    string

	HasReplica bool
	Replica    []KV
}

// IsDHTFrame reports whether buf begins with the DHT header's magic
// proto/version bytes, letting a tick driver classify an inbound
// datagram before choosing which decoder to run.
func IsDHTFrame(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == dhtProto && buf[1] == dhtVersion
}

// Encode packs a Message into its wire form: a fixed header followed by
// whichever optional fields the flags declare. The CRC is computed over
// the payload bytes.
func Encode(m Message) []byte {
	var flags uint8
	if m.HasStatus {
		flags |= FlagStatus
	}
	if m.HasKey {
		flags |= FlagKey
	}
	if m.HasValue {
		flags |= FlagVal
	}
	if m.HasReplica {
		flags |= FlagReplica
	}

	payload := encodePayload(m)

	buf := make([]byte, headerSize+len(payload))
	buf[0] = dhtProto
	buf[1] = dhtVersion
	buf[2] = byte(m.Type)
	buf[3] = flags
	binary.LittleEndian.PutUint32(buf[4:8], m.Transaction)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.SrcID))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(m.SrcPort))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(crc32.ChecksumIEEE(payload)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// Decode unpacks a Message from its wire form, validating the header
// magic/version, message type, declared payload size, and CRC.
func Decode(buf []byte) (Message, error) {
	if len(buf) < headerSize {
		return Message{}, ErrMalformed
	}
	if buf[0] != dhtProto || buf[1] != dhtVersion {
		return Message{}, ErrMalformed
	}
	if DHTMsgType(buf[2]) > SyncBegin {
		return Message{}, ErrUnknownType
	}

	flags := buf[3]
	payloadSize := binary.LittleEndian.Uint32(buf[16:20])
	if uint64(headerSize)+uint64(payloadSize) != uint64(len(buf)) {
		return Message{}, ErrMalformed
	}
	payload := buf[headerSize:]

	wantCRC := binary.LittleEndian.Uint16(buf[14:16])
	if uint16(crc32.ChecksumIEEE(payload)) != wantCRC {
		return Message{}, ErrMalformed
	}

	m := Message{
		Type:        DHTMsgType(buf[2]),
		Transaction: binary.LittleEndian.Uint32(buf[4:8]),
		SrcID:       int32(binary.LittleEndian.Uint32(buf[8:12])),
		SrcPort:     int16(binary.LittleEndian.Uint16(buf[12:14])),
	}

	off := 0
	if flags&FlagStatus != 0 {
		if off+1 > len(payload) {
			return Message{}, ErrMalformed
		}
		m.HasStatus = true
		m.Status = payload[off]
		off++
	}
	if flags&FlagKey != 0 {
		key, n, err := readString(payload[off:])
		if err != nil {
			return Message{}, err
		}
		m.HasKey = true
		m.Key = key
		off += n
	}
	if flags&FlagVal != 0 {
		val, n, err := readString(payload[off:])
		if err != nil {
			return Message{}, err
		}
		m.HasValue = true
		m.Value = val
		off += n
	}
	if flags&FlagReplica != 0 {
		if off+4 > len(payload) {
			return Message{}, ErrMalformed
		}
		count := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		replica := make([]KV, 0, count)
		for i := uint32(0); i < count; i++ {
			k, n, err := readString(payload[off:])
			if err != nil {
				return Message{}, err
			}
			off += n
			v, n, err := readString(payload[off:])
			if err != nil {
				return Message{}, err
			}
			off += n
			replica = append(replica, KV{Key: k, Value: v})
		}
		m.HasReplica = true
		m.Replica = replica
	}

	return m, nil
}

func encodePayload(m Message) []byte {
	var buf []byte
	if m.HasStatus {
		buf = append(buf, m.Status)
	}
	if m.HasKey {
		buf = appendString(buf, m.Key)
	}
	if m.HasValue {
		buf = appendString(buf, m.Value)
	}
	if m.HasReplica {
		countBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(countBuf, uint32(len(m.Replica)))
		buf = append(buf, countBuf...)
		for _, kv := range m.Replica {
			buf = appendString(buf, kv.Key)
			buf = appendString(buf, kv.Value)
		}
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	buf = append(buf, lenBuf...)
	buf = append(buf, s...)
	return buf
}

func readString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, ErrMalformed
	}
	n := binary.LittleEndian.Uint32(buf)
	if uint64(4+n) > uint64(len(buf)) {
		return "", 0, ErrMalformed
	}
	return string(buf[4 : 4+n]), 4 + int(n), nil
}
