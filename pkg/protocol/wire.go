package protocol

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// 以 protobuf 线格式手工编解码，字段号即协议的一部分，只增不改

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendFloat 按位编码，保证各端得到完全相同的浮点数
func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	bits := math.Float64bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, bits)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessage 嵌套消息（空消息也会写出，用于表示列表元素）
func appendMessage(b []byte, num protowire.Number, encode func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, encode(nil))
}

func appendPacked(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// field 解码时的当前字段
type field struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
	n   int // 本字段消耗的字节数，0 表示未处理（跳过）
}

func (f *field) uint64() uint64 {
	if f.typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	f.n = n
	return v
}

func (f *field) uint32() uint32 {
	return uint32(f.uint64())
}

func (f *field) int32() int32 {
	return int32(protowire.DecodeZigZag(f.uint64()))
}

func (f *field) bool() bool {
	return protowire.DecodeBool(f.uint64())
}

func (f *field) float64() float64 {
	if f.typ != protowire.Fixed64Type {
		return 0
	}
	v, n := protowire.ConsumeFixed64(f.b)
	f.n = n
	return math.Float64frombits(v)
}

func (f *field) bytes() []byte {
	if f.typ != protowire.BytesType {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.b)
	f.n = n
	return v
}

func (f *field) string() string {
	return string(f.bytes())
}

// packed 同时接受打包与逐个编码的 varint 列表
func (f *field) packed(dst []uint64) []uint64 {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, f.uint64())
	case protowire.BytesType:
		b := f.bytes()
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				f.n = n
				return dst
			}
			dst = append(dst, v)
			b = b[n:]
		}
	}
	return dst
}

// walk 逐个字段回调；未识别或类型不符的字段被跳过
func walk(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ, b: b}
		if err := fn(&f); err != nil {
			return err
		}
		if f.n == 0 {
			f.n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if f.n < 0 {
			return protowire.ParseError(f.n)
		}
		b = b[f.n:]
	}
	return nil
}
