package handlers

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/eigerco/widescan/pkg/codec"
	"github.com/eigerco/widescan/pkg/scan"
)

// Range-slice messages are encoded in the protobuf wire format:
//
//	request   { 1: family string, 2: start bytes, 3: end bytes, 4: limit uint64, 5: predicate }
//	predicate { 1: names repeated bytes, 2: start bytes, 3: finish bytes, 4: count uint64 }
//	response  { 1: status uint64, 2: error string, 3: rows repeated row }
//	row       { 1: key bytes, 2: columns repeated column }
//	column    { 1: name bytes, 2: value bytes }
//
// Unknown fields are skipped.

// rangeSliceRequest is a scan.RangeRequest addressed to one family.
type rangeSliceRequest struct {
	Family  string
	Request scan.RangeRequest
}

type rangeSliceResponse struct {
	Status Status
	Error  string
	Rows   []scan.RowSlice
}

func wireError(what string, data []byte, err error) error {
	return &codec.DecodeError{Codec: "wire " + what, Data: data, Err: err}
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	return appendBytesField(b, num, msg)
}

// fieldFunc handles one field; it returns the bytes it consumed or a
// negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

// consumeFields walks every field of a message, skipping the ones fn leaves
// alone by returning 0.
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte{}, v...)
	}
	return n
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func encodePredicate(p scan.Predicate) []byte {
	var b []byte
	for _, name := range p.Names {
		b = appendBytesField(b, 1, name)
	}
	if len(p.Start) > 0 {
		b = appendBytesField(b, 2, p.Start)
	}
	if len(p.Finish) > 0 {
		b = appendBytesField(b, 3, p.Finish)
	}
	if p.Count > 0 {
		b = appendVarintField(b, 4, uint64(p.Count))
	}
	return b
}

func decodePredicate(b []byte) (scan.Predicate, error) {
	var p scan.Predicate
	var count uint64
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			var name []byte
			n := consumeBytes(typ, b, &name)
			if n > 0 {
				p.Names = append(p.Names, name)
			}
			return n
		case 2:
			return consumeBytes(typ, b, &p.Start)
		case 3:
			return consumeBytes(typ, b, &p.Finish)
		case 4:
			return consumeVarint(typ, b, &count)
		}
		return 0
	})
	p.Count = int(count)
	return p, err
}

func encodeRequest(req rangeSliceRequest) []byte {
	var b []byte
	b = appendBytesField(b, 1, []byte(req.Family))
	b = appendBytesField(b, 2, req.Request.StartKey)
	if len(req.Request.EndKey) > 0 {
		b = appendBytesField(b, 3, req.Request.EndKey)
	}
	b = appendVarintField(b, 4, uint64(req.Request.Limit))
	if pred := encodePredicate(req.Request.Predicate); len(pred) > 0 {
		b = appendMessageField(b, 5, pred)
	}
	return b
}

func decodeRequest(data []byte) (rangeSliceRequest, error) {
	var (
		req    rangeSliceRequest
		family []byte
		limit  uint64
		pred   []byte
	)
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &family)
		case 2:
			return consumeBytes(typ, b, &req.Request.StartKey)
		case 3:
			return consumeBytes(typ, b, &req.Request.EndKey)
		case 4:
			return consumeVarint(typ, b, &limit)
		case 5:
			return consumeBytes(typ, b, &pred)
		}
		return 0
	})
	if err != nil {
		return rangeSliceRequest{}, wireError("request", data, err)
	}
	if limit > uint64(MaxLimit) {
		return rangeSliceRequest{}, wireError("request", data, fmt.Errorf("limit %d above %d", limit, MaxLimit))
	}

	req.Family = string(family)
	req.Request.Limit = int(limit)
	if pred != nil {
		if req.Request.Predicate, err = decodePredicate(pred); err != nil {
			return rangeSliceRequest{}, wireError("predicate", pred, err)
		}
	}
	return req, nil
}

func encodeRow(row scan.RowSlice) []byte {
	b := appendBytesField(nil, 1, row.Key)
	for _, col := range row.Columns {
		c := appendBytesField(nil, 1, col.Name)
		c = appendBytesField(c, 2, col.Value)
		b = appendMessageField(b, 2, c)
	}
	return b
}

func decodeColumn(b []byte) (scan.RawColumn, error) {
	var col scan.RawColumn
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &col.Name)
		case 2:
			return consumeBytes(typ, b, &col.Value)
		}
		return 0
	})
	return col, err
}

func decodeRow(b []byte) (scan.RowSlice, error) {
	row := scan.RowSlice{Columns: []scan.RawColumn{}}
	var colErr error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytes(typ, b, &row.Key)
		case 2:
			var raw []byte
			n := consumeBytes(typ, b, &raw)
			if n > 0 {
				col, err := decodeColumn(raw)
				if err != nil {
					colErr = err
					return -1
				}
				row.Columns = append(row.Columns, col)
			}
			return n
		}
		return 0
	})
	if colErr != nil {
		return row, colErr
	}
	return row, err
}

func encodeResponse(resp rangeSliceResponse) []byte {
	var b []byte
	if resp.Status != StatusOK {
		b = appendVarintField(b, 1, uint64(resp.Status))
	}
	if resp.Error != "" {
		b = appendBytesField(b, 2, []byte(resp.Error))
	}
	for _, row := range resp.Rows {
		b = appendMessageField(b, 3, encodeRow(row))
	}
	return b
}

func decodeResponse(data []byte) (rangeSliceResponse, error) {
	var (
		resp   rangeSliceResponse
		status uint64
		msg    []byte
		rowErr error
	)
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeVarint(typ, b, &status)
		case 2:
			return consumeBytes(typ, b, &msg)
		case 3:
			var raw []byte
			n := consumeBytes(typ, b, &raw)
			if n > 0 {
				row, err := decodeRow(raw)
				if err != nil {
					rowErr = err
					return -1
				}
				resp.Rows = append(resp.Rows, row)
			}
			return n
		}
		return 0
	})
	if rowErr != nil {
		err = rowErr
	}
	if err != nil {
		return rangeSliceResponse{}, wireError("response", data, err)
	}
	resp.Status = Status(status)
	resp.Error = string(msg)
	return resp, nil
}
