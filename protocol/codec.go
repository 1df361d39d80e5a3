// Package protocol encodes station messages as protobuf wire format inside a small datagram envelope.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/encodeous/station/state"
	"github.com/encodeous/station/timetable"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	Magic   = 0x53
	Version = 1

	// MaxPayload is the largest datagram payload a station will send.
	MaxPayload = 65507
	// MaxRouteLen bounds decoded routes regardless of local hop limits.
	MaxRouteLen = 255
)

var ErrTooLarge = errors.New("message exceeds datagram size")

type kind uint64

const (
	kindOutgoing kind = 1
	kindIncoming kind = 2
)

// message fields
const (
	fieldKind   protowire.Number = 1
	fieldQuery  protowire.Number = 2
	fieldCursor protowire.Number = 3
)

// query fields
const (
	fieldID            protowire.Number = 1
	fieldSource        protowire.Number = 2
	fieldDestination   protowire.Number = 3
	fieldTripType      protowire.Number = 4
	fieldRequestedTime protowire.Number = 5
	fieldRouteEnd      protowire.Number = 6
	fieldRoute         protowire.Number = 7
)

// hop fields
const (
	fieldStation  protowire.Number = 1
	fieldHopQuery protowire.Number = 2
	fieldAddr     protowire.Number = 3
	fieldTrips    protowire.Number = 4
)

// trip fields
const (
	fieldDeparture       protowire.Number = 1
	fieldService         protowire.Number = 2
	fieldPlatform        protowire.Number = 3
	fieldArrival         protowire.Number = 4
	fieldTripDestination protowire.Number = 5
)

func Encode(msg state.Message) ([]byte, error) {
	b := []byte{Magic, Version}
	switch m := msg.(type) {
	case state.OutgoingQuery:
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(kindOutgoing))
		b = protowire.AppendTag(b, fieldQuery, protowire.BytesType)
		b = protowire.AppendBytes(b, appendQuery(nil, m.Query))
	case state.IncomingQuery:
		if m.Cursor < 0 {
			return nil, fmt.Errorf("negative cursor %d", m.Cursor)
		}
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(kindIncoming))
		b = protowire.AppendTag(b, fieldQuery, protowire.BytesType)
		b = protowire.AppendBytes(b, appendQuery(nil, m.Query))
		b = protowire.AppendTag(b, fieldCursor, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Cursor))
	default:
		return nil, fmt.Errorf("unknown message type %T", msg)
	}
	if len(b) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendQuery(b []byte, q state.Query) []byte {
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, q.ID[:])
	b = appendString(b, fieldSource, q.Source)
	b = appendString(b, fieldDestination, q.Destination)
	b = appendVarint(b, fieldTripType, uint64(q.TripType))
	b = appendVarint(b, fieldRequestedTime, uint64(q.RequestedTime))
	b = appendVarint(b, fieldRouteEnd, protowire.EncodeBool(q.RouteEndFound))
	for _, hop := range q.Route {
		b = protowire.AppendTag(b, fieldRoute, protowire.BytesType)
		b = protowire.AppendBytes(b, appendHop(nil, hop))
	}
	return b
}

func appendHop(b []byte, h state.RouteHop) []byte {
	b = appendString(b, fieldStation, h.Station)
	b = protowire.AppendTag(b, fieldHopQuery, protowire.BytesType)
	b = protowire.AppendBytes(b, h.Query[:])
	addr, _ := h.Addr.MarshalBinary()
	b = protowire.AppendTag(b, fieldAddr, protowire.BytesType)
	b = protowire.AppendBytes(b, addr)
	for _, t := range h.Trips {
		b = protowire.AppendTag(b, fieldTrips, protowire.BytesType)
		b = protowire.AppendBytes(b, appendTrip(nil, t))
	}
	return b
}

func appendTrip(b []byte, t timetable.Trip) []byte {
	b = appendVarint(b, fieldDeparture, uint64(t.Departure))
	b = appendString(b, fieldService, t.Service)
	b = appendString(b, fieldPlatform, t.Platform)
	b = appendVarint(b, fieldArrival, uint64(t.Arrival))
	b = appendString(b, fieldTripDestination, t.Destination)
	return b
}

// Decode parses and validates a datagram. Every error it returns wraps state.ErrMalformed.
func Decode(b []byte) (state.Message, error) {
	if len(b) < 2 {
		return nil, state.Malformed("decode", "datagram too short (%d bytes)", len(b))
	}
	if b[0] != Magic {
		return nil, state.Malformed("decode", "bad magic 0x%02x", b[0])
	}
	if b[1] != Version {
		return nil, state.Malformed("decode", "unsupported version %d", b[1])
	}
	var (
		k         kind
		q         state.Query
		haveQuery bool
		cursor    uint64
		haveCur   bool
	)
	err := walk(b[2:], func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			k = kind(n)
		case num == fieldQuery && typ == protowire.BytesType:
			var err error
			if q, err = decodeQuery(v); err != nil {
				return err
			}
			haveQuery = true
		case num == fieldCursor && typ == protowire.VarintType:
			cursor, haveCur = n, true
		}
		return nil
	})
	if err != nil {
		return nil, state.Malformed("decode", "%v", err)
	}
	if !haveQuery {
		return nil, state.Malformed("decode", "missing query")
	}
	if err := validateQuery(q); err != nil {
		return nil, state.Malformed("decode", "%v", err)
	}
	switch k {
	case kindOutgoing:
		if haveCur {
			return nil, state.Malformed("decode", "outgoing query carries a cursor")
		}
		return state.OutgoingQuery{Query: q}, nil
	case kindIncoming:
		if cursor >= uint64(len(q.Route)) {
			return nil, state.Malformed("decode", "cursor %d outside route of %d hops", cursor, len(q.Route))
		}
		return state.IncomingQuery{Query: q, Cursor: int(cursor)}, nil
	}
	return nil, state.Malformed("decode", "unknown message kind %d", k)
}

// walk visits every field of a protobuf message. Varint values are passed in n, length-delimited values in v.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tl := protowire.ConsumeTag(b)
		if tl < 0 {
			return protowire.ParseError(tl)
		}
		b = b[tl:]
		var (
			v  []byte
			n  uint64
			vl int
		)
		switch typ {
		case protowire.VarintType:
			n, vl = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v, vl = protowire.ConsumeBytes(b)
		default:
			vl = protowire.ConsumeFieldValue(num, typ, b)
		}
		if vl < 0 {
			return protowire.ParseError(vl)
		}
		b = b[vl:]
		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}

func decodeID(v []byte) (state.QueryID, error) {
	id, err := uuid.FromBytes(v)
	if err != nil {
		return state.QueryID{}, fmt.Errorf("invalid query id: %w", err)
	}
	return id, nil
}

func decodeClock(n uint64) (timetable.Clock, error) {
	if n > uint64(timetable.LastMinute) {
		return 0, fmt.Errorf("time %d out of range", n)
	}
	return timetable.Clock(n), nil
}

func decodeQuery(b []byte) (state.Query, error) {
	var q state.Query
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		var err error
		switch {
		case num == fieldID && typ == protowire.BytesType:
			q.ID, err = decodeID(v)
		case num == fieldSource && typ == protowire.BytesType:
			q.Source = string(v)
		case num == fieldDestination && typ == protowire.BytesType:
			q.Destination = string(v)
		case num == fieldTripType && typ == protowire.VarintType:
			if n > math.MaxUint8 {
				return fmt.Errorf("trip type %d out of range", n)
			}
			q.TripType = state.TripType(n)
		case num == fieldRequestedTime && typ == protowire.VarintType:
			q.RequestedTime, err = decodeClock(n)
		case num == fieldRouteEnd && typ == protowire.VarintType:
			q.RouteEndFound = protowire.DecodeBool(n)
		case num == fieldRoute && typ == protowire.BytesType:
			if len(q.Route) >= MaxRouteLen {
				return fmt.Errorf("route longer than %d hops", MaxRouteLen)
			}
			var hop state.RouteHop
			hop, err = decodeHop(v)
			q.Route = append(q.Route, hop)
		}
		return err
	})
	return q, err
}

func decodeHop(b []byte) (state.RouteHop, error) {
	var h state.RouteHop
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		var err error
		switch {
		case num == fieldStation && typ == protowire.BytesType:
			h.Station = string(v)
		case num == fieldHopQuery && typ == protowire.BytesType:
			h.Query, err = decodeID(v)
		case num == fieldAddr && typ == protowire.BytesType:
			if err = h.Addr.UnmarshalBinary(v); err == nil {
				h.Addr = state.NormalizeAddr(h.Addr)
			}
		case num == fieldTrips && typ == protowire.BytesType:
			var t timetable.Trip
			t, err = decodeTrip(v)
			h.Trips = append(h.Trips, t)
		}
		return err
	})
	return h, err
}

func decodeTrip(b []byte) (timetable.Trip, error) {
	var t timetable.Trip
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		var err error
		switch {
		case num == fieldDeparture && typ == protowire.VarintType:
			t.Departure, err = decodeClock(n)
		case num == fieldService && typ == protowire.BytesType:
			t.Service = string(v)
		case num == fieldPlatform && typ == protowire.BytesType:
			t.Platform = string(v)
		case num == fieldArrival && typ == protowire.VarintType:
			t.Arrival, err = decodeClock(n)
		case num == fieldTripDestination && typ == protowire.BytesType:
			t.Destination = string(v)
		}
		return err
	})
	return t, err
}

func validateQuery(q state.Query) error {
	if q.ID == uuid.Nil {
		return fmt.Errorf("missing query id")
	}
	if !q.TripType.Valid() {
		return fmt.Errorf("unknown trip type %d", q.TripType)
	}
	if err := state.Validate(q); err != nil {
		return err
	}
	if q.Route[0].Station != q.Source {
		return fmt.Errorf("route starts at %s, not the source %s", q.Route[0].Station, q.Source)
	}
	for i, hop := range q.Route {
		if hop.Query != q.ID {
			return fmt.Errorf("hop %d belongs to query %s", i, hop.Query)
		}
		if !hop.Addr.IsValid() {
			return fmt.Errorf("hop %d has no address", i)
		}
		if err := state.NameValidator(hop.Station); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}
