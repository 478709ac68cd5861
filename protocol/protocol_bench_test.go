package protocol

import (
	"bytes"
	"io"
	"strconv"
	"testing"
)

// BenchmarkReaderParseInteger benchmarks parsing integers
func BenchmarkReaderParseInteger(b *testing.B) {
	input := []byte(":1234567890\r\n")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r := NewReader(bytes.NewReader(input))
		if _, err := r.ReadNext(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReaderParseBulkString benchmarks parsing bulk strings of different sizes
func BenchmarkReaderParseBulkString(b *testing.B) {
	for _, size := range []int{16, 1024, 64 * 1024} {
		data := bytes.Repeat([]byte("x"), size)
		var buf bytes.Buffer
		buf.WriteString("$" + strconv.Itoa(size) + CRLF)
		buf.Write(data)
		buf.WriteString(CRLF)
		input := buf.Bytes()

		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.SetBytes(int64(size))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				r := NewReader(bytes.NewReader(input))
				if _, err := r.ReadNext(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkReaderParseCommand compares multibulk and inline command parsing
func BenchmarkReaderParseCommand(b *testing.B) {
	inputs := map[string][]byte{
		"multibulk": []byte("*4\r\n$6\r\nLRANGE\r\n$6\r\nmylist\r\n$1\r\n0\r\n$2\r\n-1\r\n"),
		"inline":    []byte("LRANGE mylist 0 -1\r\n"),
	}

	for name, input := range inputs {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				r := NewReader(bytes.NewReader(input))
				if _, err := r.ReadCommand(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkReaderParseBatch benchmarks a pipelined batch of INCR commands
func BenchmarkReaderParseBatch(b *testing.B) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 100; i++ {
		w.WriteCommand("INCR", "counter:"+strconv.Itoa(i%10))
	}
	w.Flush()
	input := buf.Bytes()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r := NewReader(bytes.NewReader(input))
		for {
			if _, err := r.ReadCommand(); err != nil {
				if err == io.EOF {
					break
				}
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkWriterInteger benchmarks writing integers
func BenchmarkWriterInteger(b *testing.B) {
	w := NewWriter(io.Discard)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w.WriteInteger(int64(i))
		w.Flush()
	}
}

// BenchmarkWriterBulkStrings benchmarks writing LRANGE style replies
func BenchmarkWriterBulkStrings(b *testing.B) {
	for _, n := range []int{1, 10, 100} {
		items := make([][]byte, n)
		for i := range items {
			items[i] = []byte("item" + strconv.Itoa(i))
		}

		b.Run(strconv.Itoa(n), func(b *testing.B) {
			w := NewWriter(io.Discard)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				w.WriteBulkStrings(items)
				w.Flush()
			}
		})
	}
}
