package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// MAVLink frame magic bytes.
const (
	magicV1 = 0xFE
	magicV2 = 0xFD
)

// Message IDs the bridge converts to structured JSON. Anything else gets
// the generic unknown-message envelope.
const (
	msgIDHeartbeat        = 0
	msgIDSysStatus        = 1
	msgIDGPSRawInt        = 24
	msgIDAttitude         = 30
	msgIDLocalPositionNED = 32
)

// MavlinkEncoder decodes MAVLink v1/v2 frames read from a pipe and emits a
// JSON document for the first message in the buffer.
type MavlinkEncoder struct{}

// NewMavlinkEncoder returns the MAVLink to JSON encoder.
func NewMavlinkEncoder() *MavlinkEncoder {
	return &MavlinkEncoder{}
}

func (e *MavlinkEncoder) Name() string { return "mavlink" }

// Matches selects pipes known to carry MAVLink traffic by name pattern.
func (e *MavlinkEncoder) Matches(pipeName string) bool {
	for _, pattern := range []string{"mavlink", "sys_status", "heartbeat"} {
		if strings.Contains(pipeName, pattern) {
			return true
		}
	}
	return false
}

func (e *MavlinkEncoder) Encode(data []byte) ([]byte, error) {
	frames := parseFrames(data)
	if len(frames) == 0 {
		return nil, fmt.Errorf("no valid MAVLink frames in %d bytes", len(data))
	}
	// multiple frames in one read: first message wins
	return frames[0].toJSON(time.Now().Unix())
}

// frame is one decoded MAVLink message.
type frame struct {
	seq     uint8
	sysID   uint8
	compID  uint8
	msgID   uint32
	payload []byte
}

// parseFrames scans the buffer for v1/v2 frames, resynchronizing on the
// magic byte after garbage.
func parseFrames(data []byte) []frame {
	var frames []frame
	for i := 0; i < len(data); {
		switch data[i] {
		case magicV2:
			f, size := parseV2(data[i:])
			if f == nil {
				i++
				continue
			}
			frames = append(frames, *f)
			i += size
		case magicV1:
			f, size := parseV1(data[i:])
			if f == nil {
				i++
				continue
			}
			frames = append(frames, *f)
			i += size
		default:
			i++
		}
	}
	return frames
}

// parseV2 decodes a v2 frame: magic, len, incompat, compat, seq, sysid,
// compid, 24-bit msgid, payload, checksum, optional 13-byte signature.
func parseV2(data []byte) (*frame, int) {
	const headerLen = 10
	if len(data) < headerLen+2 {
		return nil, 0
	}
	payloadLen := int(data[1])
	size := headerLen + payloadLen + 2
	if data[2]&0x01 != 0 { // signed frame
		size += 13
	}
	if len(data) < size {
		return nil, 0
	}
	return &frame{
		seq:     data[4],
		sysID:   data[5],
		compID:  data[6],
		msgID:   uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16,
		payload: data[headerLen : headerLen+payloadLen],
	}, size
}

// parseV1 decodes a v1 frame: magic, len, seq, sysid, compid, msgid,
// payload, checksum.
func parseV1(data []byte) (*frame, int) {
	const headerLen = 6
	if len(data) < headerLen+2 {
		return nil, 0
	}
	payloadLen := int(data[1])
	size := headerLen + payloadLen + 2
	if len(data) < size {
		return nil, 0
	}
	return &frame{
		seq:     data[2],
		sysID:   data[3],
		compID:  data[4],
		msgID:   uint32(data[5]),
		payload: data[headerLen : headerLen+payloadLen],
	}, size
}

type header struct {
	MsgID     uint32 `json:"msgid"`
	SysID     uint8  `json:"sysid"`
	CompID    uint8  `json:"compid"`
	Seq       uint8  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

func (f *frame) header(now int64) header {
	return header{
		MsgID:     f.msgID,
		SysID:     f.sysID,
		CompID:    f.compID,
		Seq:       f.seq,
		Timestamp: now,
	}
}

// payloadReader reads little-endian fields from a frame payload, treating
// bytes past the end as zero (v2 frames truncate trailing zero bytes).
type payloadReader struct {
	buf []byte
}

func (r payloadReader) at(off, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if off+i < len(r.buf) {
			out[i] = r.buf[off+i]
		}
	}
	return out
}

func (r payloadReader) u8(off int) uint8   { return r.at(off, 1)[0] }
func (r payloadReader) i8(off int) int8    { return int8(r.u8(off)) }
func (r payloadReader) u16(off int) uint16 { return binary.LittleEndian.Uint16(r.at(off, 2)) }
func (r payloadReader) i16(off int) int16  { return int16(r.u16(off)) }
func (r payloadReader) u32(off int) uint32 { return binary.LittleEndian.Uint32(r.at(off, 4)) }
func (r payloadReader) i32(off int) int32  { return int32(r.u32(off)) }
func (r payloadReader) u64(off int) uint64 { return binary.LittleEndian.Uint64(r.at(off, 8)) }
func (r payloadReader) f32(off int) float32 {
	return math.Float32frombits(r.u32(off))
}

func (f *frame) toJSON(now int64) ([]byte, error) {
	p := payloadReader{buf: f.payload}
	h := f.header(now)

	switch f.msgID {
	case msgIDHeartbeat:
		return json.Marshal(struct {
			header
			Type           uint8  `json:"type"`
			Autopilot      uint8  `json:"autopilot"`
			BaseMode       uint8  `json:"base_mode"`
			CustomMode     uint32 `json:"custom_mode"`
			SystemStatus   uint8  `json:"system_status"`
			MavlinkVersion uint8  `json:"mavlink_version"`
		}{h, p.u8(4), p.u8(5), p.u8(6), p.u32(0), p.u8(7), p.u8(8)})

	case msgIDSysStatus:
		return json.Marshal(struct {
			header
			VoltageBattery   uint16 `json:"voltage_battery"`
			CurrentBattery   int16  `json:"current_battery"`
			BatteryRemaining int8   `json:"battery_remaining"`
			Load             uint16 `json:"load"`
		}{h, p.u16(14), p.i16(16), p.i8(30), p.u16(12)})

	case msgIDAttitude:
		return json.Marshal(struct {
			header
			TimeBootMs uint32  `json:"time_boot_ms"`
			Roll       float32 `json:"roll"`
			Pitch      float32 `json:"pitch"`
			Yaw        float32 `json:"yaw"`
			RollSpeed  float32 `json:"rollspeed"`
			PitchSpeed float32 `json:"pitchspeed"`
			YawSpeed   float32 `json:"yawspeed"`
		}{h, p.u32(0), p.f32(4), p.f32(8), p.f32(12), p.f32(16), p.f32(20), p.f32(24)})

	case msgIDLocalPositionNED:
		return json.Marshal(struct {
			header
			TimeBootMs uint32  `json:"time_boot_ms"`
			X          float32 `json:"x"`
			Y          float32 `json:"y"`
			Z          float32 `json:"z"`
			VX         float32 `json:"vx"`
			VY         float32 `json:"vy"`
			VZ         float32 `json:"vz"`
		}{h, p.u32(0), p.f32(4), p.f32(8), p.f32(12), p.f32(16), p.f32(20), p.f32(24)})

	case msgIDGPSRawInt:
		return json.Marshal(struct {
			header
			TimeUsec          uint64 `json:"time_usec"`
			FixType           uint8  `json:"fix_type"`
			Lat               int32  `json:"lat"`
			Lon               int32  `json:"lon"`
			Alt               int32  `json:"alt"`
			Eph               uint16 `json:"eph"`
			Epv               uint16 `json:"epv"`
			Vel               uint16 `json:"vel"`
			Cog               uint16 `json:"cog"`
			SatellitesVisible uint8  `json:"satellites_visible"`
		}{h, p.u64(0), p.u8(28), p.i32(8), p.i32(12), p.i32(16), p.u16(20), p.u16(22), p.u16(24), p.u16(26), p.u8(29)})

	default:
		return json.Marshal(struct {
			header
			RawData     string `json:"raw_data"`
			MessageName string `json:"message_name"`
		}{h, "unsupported_message_type", fmt.Sprintf("UNKNOWN_MSG_%d", f.msgID)})
	}
}
