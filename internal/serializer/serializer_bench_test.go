package serializer

import (
	"testing"
)

func BenchmarkEncode(b *testing.B) {
	meta := sampleMeta()
	r := sampleReport()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Encode(1, meta, r)
	}
}

func BenchmarkDecode(b *testing.B) {
	buf := Encode(1, sampleMeta(), sampleReport())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = Decode(buf)
	}
}
