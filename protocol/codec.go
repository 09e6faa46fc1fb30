package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// 消息的二进制编码采用protobuf wire格式：
// 1-类型 2-路口ID 3-车辆ID，10以后为各消息自身字段，整数均为zigzag编码

var (
	ErrUnknownKind    = errors.New("protocol: unknown message kind")
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrWrongDirection = errors.New("protocol: wrong message direction")
)

const (
	fieldKind     protowire.Number = 1
	fieldJunction protowire.Number = 2
	fieldVIN      protowire.Number = 3
)

// encoder 追加写入字段
type encoder []byte

func (e *encoder) int(num protowire.Number, v int32) {
	if v == 0 {
		return
	}
	*e = protowire.AppendTag(*e, num, protowire.VarintType)
	*e = protowire.AppendVarint(*e, protowire.EncodeZigZag(int64(v)))
}

func (e *encoder) float(num protowire.Number, v float64) {
	if v == 0 {
		return
	}
	*e = protowire.AppendTag(*e, num, protowire.Fixed64Type)
	*e = protowire.AppendFixed64(*e, math.Float64bits(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	*e = protowire.AppendTag(*e, num, protowire.VarintType)
	*e = protowire.AppendVarint(*e, protowire.EncodeBool(v))
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	*e = protowire.AppendTag(*e, num, protowire.BytesType)
	*e = protowire.AppendBytes(*e, v)
}

func (e *encoder) profile(num protowire.Number, profile []AccelSegment) {
	for _, seg := range profile {
		var sub encoder
		sub.float(1, seg.Acceleration)
		sub.float(2, seg.Duration)
		e.bytes(num, sub)
	}
}

// field 解析出的单个字段
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) int() (int32, error) {
	if f.typ != protowire.VarintType {
		return 0, f.mismatch()
	}
	return int32(protowire.DecodeZigZag(f.u)), nil
}

func (f field) float() (float64, error) {
	if f.typ != protowire.Fixed64Type {
		return 0, f.mismatch()
	}
	return math.Float64frombits(f.u), nil
}

func (f field) bool() (bool, error) {
	if f.typ != protowire.VarintType {
		return false, f.mismatch()
	}
	return protowire.DecodeBool(f.u), nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.mismatch()
	}
	return f.b, nil
}

func (f field) mismatch() error {
	return fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, f.num, f.typ)
}

// parse 依次解析b中的每个字段
func parse(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Marshal 将消息编码为二进制
func Marshal(m Message) []byte {
	var e encoder
	e.int(fieldKind, int32(m.Kind()))
	h := m.Route()
	e.int(fieldJunction, h.JunctionID)
	e.int(fieldVIN, h.VIN)
	switch x := m.(type) {
	case *Request:
		e.int(10, x.RequestID)
		var spec encoder
		spec.float(1, x.Spec.Length)
		spec.float(2, x.Spec.Width)
		spec.float(3, x.Spec.MaxVelocity)
		spec.float(4, x.Spec.MaxAcceleration)
		spec.bool(5, x.Spec.Emergency)
		e.bytes(11, spec)
		for _, p := range x.Proposals {
			var sub encoder
			sub.float(1, p.ArrivalTime)
			sub.float(2, p.ArrivalVelocity)
			sub.int(3, p.EntryLane)
			sub.int(4, p.ExitLane)
			sub.profile(5, p.AccelProfile)
			e.bytes(12, sub)
		}
	case *Cancel:
		e.int(10, x.ReservationID)
	case *Done:
		e.int(10, x.ReservationID)
	case *Away:
		e.int(10, x.ReservationID)
	case *QRequest:
		e.int(10, x.VehicleInFront)
		e.float(11, x.DistanceToMerge)
	case *Confirm:
		e.int(10, x.ReservationID)
		e.int(11, x.RequestID)
		e.float(12, x.ArrivalTime)
		e.float(13, x.EarlyError)
		e.float(14, x.LateError)
		e.float(15, x.ArrivalVelocity)
		e.int(16, x.EntryLane)
		e.int(17, x.ExitLane)
		e.float(18, x.ACZDistance)
		e.profile(19, x.AccelProfile)
	case *Reject:
		e.int(10, x.RequestID)
		e.float(11, x.NextAllowedComm)
		e.int(12, int32(x.Reason))
	case *QReject:
		e.int(10, int32(x.Reason))
	case *QDone, *QConfirm, *QGo:
	}
	return e
}

// newMessage 根据类型创建空消息
func newMessage(k Kind, h Header) (Message, error) {
	switch k {
	case KindRequest:
		return &Request{Header: h}, nil
	case KindCancel:
		return &Cancel{Header: h}, nil
	case KindDone:
		return &Done{Header: h}, nil
	case KindAway:
		return &Away{Header: h}, nil
	case KindQRequest:
		return &QRequest{Header: h}, nil
	case KindQDone:
		return &QDone{Header: h}, nil
	case KindConfirm:
		return &Confirm{Header: h}, nil
	case KindReject:
		return &Reject{Header: h}, nil
	case KindQConfirm:
		return &QConfirm{Header: h}, nil
	case KindQReject:
		return &QReject{Header: h}, nil
	case KindQGo:
		return &QGo{Header: h}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, k)
}

// Unmarshal 从二进制解码消息，未知字段被忽略
func Unmarshal(b []byte) (Message, error) {
	var kind Kind
	var h Header
	err := parse(b, func(f field) (err error) {
		var v int32
		switch f.num {
		case fieldKind:
			v, err = f.int()
			kind = Kind(v)
		case fieldJunction:
			h.JunctionID, err = f.int()
		case fieldVIN:
			h.VIN, err = f.int()
		}
		return
	})
	if err != nil {
		return nil, err
	}
	m, err := newMessage(kind, h)
	if err != nil {
		return nil, err
	}
	err = parse(b, func(f field) error {
		if f.num < 10 {
			return nil
		}
		return decodeField(m, f)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalV2I 解码车辆发往路口的消息
func UnmarshalV2I(b []byte) (V2I, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	v, ok := m.(V2I)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not V2I", ErrWrongDirection, m.Kind())
	}
	return v, nil
}

// UnmarshalI2V 解码路口发往车辆的消息
func UnmarshalI2V(b []byte) (I2V, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	v, ok := m.(I2V)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not I2V", ErrWrongDirection, m.Kind())
	}
	return v, nil
}

func decodeField(m Message, f field) (err error) {
	switch x := m.(type) {
	case *Request:
		switch f.num {
		case 10:
			x.RequestID, err = f.int()
		case 11:
			var b []byte
			if b, err = f.bytes(); err == nil {
				err = decodeSpec(b, &x.Spec)
			}
		case 12:
			var b []byte
			if b, err = f.bytes(); err == nil {
				var p Proposal
				if err = decodeProposal(b, &p); err == nil {
					x.Proposals = append(x.Proposals, p)
				}
			}
		}
	case *Cancel:
		if f.num == 10 {
			x.ReservationID, err = f.int()
		}
	case *Done:
		if f.num == 10 {
			x.ReservationID, err = f.int()
		}
	case *Away:
		if f.num == 10 {
			x.ReservationID, err = f.int()
		}
	case *QRequest:
		switch f.num {
		case 10:
			x.VehicleInFront, err = f.int()
		case 11:
			x.DistanceToMerge, err = f.float()
		}
	case *Confirm:
		switch f.num {
		case 10:
			x.ReservationID, err = f.int()
		case 11:
			x.RequestID, err = f.int()
		case 12:
			x.ArrivalTime, err = f.float()
		case 13:
			x.EarlyError, err = f.float()
		case 14:
			x.LateError, err = f.float()
		case 15:
			x.ArrivalVelocity, err = f.float()
		case 16:
			x.EntryLane, err = f.int()
		case 17:
			x.ExitLane, err = f.int()
		case 18:
			x.ACZDistance, err = f.float()
		case 19:
			var seg AccelSegment
			if seg, err = decodeSegment(f); err == nil {
				x.AccelProfile = append(x.AccelProfile, seg)
			}
		}
	case *Reject:
		switch f.num {
		case 10:
			x.RequestID, err = f.int()
		case 11:
			x.NextAllowedComm, err = f.float()
		case 12:
			var v int32
			v, err = f.int()
			x.Reason = Reason(v)
		}
	case *QReject:
		if f.num == 10 {
			var v int32
			v, err = f.int()
			x.Reason = QReason(v)
		}
	}
	return
}

func decodeSpec(b []byte, spec *VehicleSpec) error {
	return parse(b, func(f field) (err error) {
		switch f.num {
		case 1:
			spec.Length, err = f.float()
		case 2:
			spec.Width, err = f.float()
		case 3:
			spec.MaxVelocity, err = f.float()
		case 4:
			spec.MaxAcceleration, err = f.float()
		case 5:
			spec.Emergency, err = f.bool()
		}
		return
	})
}

func decodeProposal(b []byte, p *Proposal) error {
	return parse(b, func(f field) (err error) {
		switch f.num {
		case 1:
			p.ArrivalTime, err = f.float()
		case 2:
			p.ArrivalVelocity, err = f.float()
		case 3:
			p.EntryLane, err = f.int()
		case 4:
			p.ExitLane, err = f.int()
		case 5:
			var seg AccelSegment
			if seg, err = decodeSegment(f); err == nil {
				p.AccelProfile = append(p.AccelProfile, seg)
			}
		}
		return
	})
}

func decodeSegment(f field) (seg AccelSegment, err error) {
	b, err := f.bytes()
	if err != nil {
		return seg, err
	}
	err = parse(b, func(f field) (err error) {
		switch f.num {
		case 1:
			seg.Acceleration, err = f.float()
		case 2:
			seg.Duration, err = f.float()
		}
		return
	})
	return seg, err
}
