package codec

import (
	"encoding/binary"

	"dkv/internal/address"
)

// MsgType identifies a membership wire message.
type MsgType uint16

// Membership message types, per spec.md §6.
const (
	JoinReq       MsgType = 0
	JoinRsp       MsgType = 1
	AddMembersReq MsgType = 2
	Heartbeat     MsgType = 3
)

// MemberData is one entry in a JoinResponse/AddMembersRequest payload.
type MemberData struct {
	ID        int32
	Port      int16
	Heartbeat int64
}

const memberDataSize = 4 + 2 + 8

// JoinRequest is sent by a node joining the cluster to its contact node.
type JoinRequest struct {
	ID        int32
	Port      int16
	Heartbeat int64
}

// JoinResponse answers a JoinRequest with the responder's own identity
// and its current memberList snapshot.
type JoinResponse struct {
	ID        int32
	Port      int16
	Heartbeat int64
	Entries   []MemberData
}

// AddMembersRequest carries a gossip push of the sender's full
// memberList.
type AddMembersRequest struct {
	ID        int32
	Port      int16
	Heartbeat int64
	Entries   []MemberData
}

// HeartbeatMsg is the lightweight per-tick heartbeat push.
type HeartbeatMsg struct {
	ID        int32
	Port      int16
	Heartbeat int64
}

// PeekType reads just the leading msg_type field without consuming the
// rest of the buffer, so the caller can dispatch before decoding.
func PeekType(buf []byte) (MsgType, error) {
	if len(buf) < 2 {
		return 0, ErrMalformed
	}
	return MsgType(binary.LittleEndian.Uint16(buf)), nil
}

// EncodeJoinRequest packs a JoinRequest frame.
func EncodeJoinRequest(m JoinRequest) []byte {
	buf := make([]byte, 2+4+2+8)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(JoinReq))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(m.ID))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(m.Port))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Heartbeat))
	return buf
}

// DecodeJoinRequest unpacks a JoinRequest frame. Caller must have already
// confirmed msg_type == JoinReq via PeekType.
func DecodeJoinRequest(buf []byte) (JoinRequest, error) {
	if len(buf) < 16 {
		return JoinRequest{}, ErrMalformed
	}
	return JoinRequest{
		ID:        int32(binary.LittleEndian.Uint32(buf[2:6])),
		Port:      int16(binary.LittleEndian.Uint16(buf[6:8])),
		Heartbeat: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// EncodeJoinResponse packs a JoinResponse frame, including the carried
// entries.
func EncodeJoinResponse(m JoinResponse) []byte {
	return encodeEntryBearing(JoinRsp, m.ID, m.Port, m.Heartbeat, m.Entries)
}

// DecodeJoinResponse unpacks a JoinResponse frame.
func DecodeJoinResponse(buf []byte) (JoinResponse, error) {
	id, port, hb, entries, err := decodeEntryBearing(buf)
	if err != nil {
		return JoinResponse{}, err
	}
	return JoinResponse{ID: id, Port: port, Heartbeat: hb, Entries: entries}, nil
}

// EncodeAddMembersRequest packs an AddMembersRequest frame.
func EncodeAddMembersRequest(m AddMembersRequest) []byte {
	return encodeEntryBearing(AddMembersReq, m.ID, m.Port, m.Heartbeat, m.Entries)
}

// DecodeAddMembersRequest unpacks an AddMembersRequest frame.
func DecodeAddMembersRequest(buf []byte) (AddMembersRequest, error) {
	id, port, hb, entries, err := decodeEntryBearing(buf)
	if err != nil {
		return AddMembersRequest{}, err
	}
	return AddMembersRequest{ID: id, Port: port, Heartbeat: hb, Entries: entries}, nil
}

// EncodeHeartbeat packs a Heartbeat frame.
func EncodeHeartbeat(m HeartbeatMsg) []byte {
	buf := make([]byte, 2+4+2+8)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(Heartbeat))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(m.ID))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(m.Port))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Heartbeat))
	return buf
}

// DecodeHeartbeat unpacks a Heartbeat frame.
func DecodeHeartbeat(buf []byte) (HeartbeatMsg, error) {
	if len(buf) < 16 {
		return HeartbeatMsg{}, ErrMalformed
	}
	return HeartbeatMsg{
		ID:        int32(binary.LittleEndian.Uint32(buf[2:6])),
		Port:      int16(binary.LittleEndian.Uint16(buf[6:8])),
		Heartbeat: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// encodeEntryBearing packs the common {msg_type,id,port,heartbeat,count,
// entries} shape shared by JoinResponse and AddMembersRequest.
func encodeEntryBearing(t MsgType, id int32, port int16, hb int64, entries []MemberData) []byte {
	size := 2 + 4 + 2 + 8 + 8 + len(entries)*memberDataSize
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(t))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(id))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(port))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(hb))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(entries)))

	off := 24
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(e.ID))
		binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(e.Port))
		binary.LittleEndian.PutUint64(buf[off+6:off+14], uint64(e.Heartbeat))
		off += memberDataSize
	}
	return buf
}

func decodeEntryBearing(buf []byte) (id int32, port int16, hb int64, entries []MemberData, err error) {
	if len(buf) < 24 {
		return 0, 0, 0, nil, ErrMalformed
	}
	id = int32(binary.LittleEndian.Uint32(buf[2:6]))
	port = int16(binary.LittleEndian.Uint16(buf[6:8]))
	hb = int64(binary.LittleEndian.Uint64(buf[8:16]))
	count := binary.LittleEndian.Uint64(buf[16:24])

	need := 24 + int(count)*memberDataSize
	if count > (1<<32) || need < 0 || len(buf) < need {
		return 0, 0, 0, nil, ErrMalformed
	}

	entries = make([]MemberData, 0, count)
	off := 24
	for i := uint64(0); i < count; i++ {
		entries = append(entries, MemberData{
			ID:        int32(binary.LittleEndian.Uint32(buf[off : off+4])),
			Port:      int16(binary.LittleEndian.Uint16(buf[off+4 : off+6])),
			Heartbeat: int64(binary.LittleEndian.Uint64(buf[off+6 : off+14])),
		})
		off += memberDataSize
	}
	return id, port, hb, entries, nil
}

// Addr reconstructs the sender's address.Addr from a frame's id/port.
func Addr(id int32, port int16) address.Addr {
	return address.New(id, port)
}
