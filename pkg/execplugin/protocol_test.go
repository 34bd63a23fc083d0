package execplugin

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Observation
	}{
		{"counter", "counter,requests,42\n", Observation{Kind: KindCounter, Label: "requests", Counter: 42}},
		{"gauge", "gauge,temp,21.5", Observation{Kind: KindGauge, Label: "temp", Gauge: 21.5}},
		{"case insensitive kind", "GAUGE,load,0.25\r\n", Observation{Kind: KindGauge, Label: "load", Gauge: 0.25}},
		{"negative counter", "counter,x,-5", Observation{Kind: KindCounter, Label: "x"}},
		{"counter trailing garbage", "counter,x,17abc", Observation{Kind: KindCounter, Label: "x", Counter: 17}},
		{"counter not a number", "counter,x,abc", Observation{Kind: KindCounter, Label: "x"}},
		{"gauge not a number", "gauge,x,abc", Observation{Kind: KindGauge, Label: "x"}},
		{"gauge exponent", "gauge,x,1.5e3", Observation{Kind: KindGauge, Label: "x", Gauge: 1500}},
		{"gauge negative", "gauge,x,-2.5kg", Observation{Kind: KindGauge, Label: "x", Gauge: -2.5}},
		{"empty label", "gauge,,1", Observation{Kind: KindGauge, Label: "", Gauge: 1}},
		{"value keeps commas", "gauge,x,3,4", Observation{Kind: KindGauge, Label: "x", Gauge: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineCounterSaturates(t *testing.T) {
	got, err := ParseLine("counter,big,99999999999999999999999")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Counter)
}

func TestParseLineGaugeSpecialValues(t *testing.T) {
	got, err := ParseLine("gauge,x,inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Gauge, 1))

	got, err = ParseLine("gauge,x,-Infinity")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Gauge, -1))

	got, err = ParseLine("gauge,x,NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Gauge))

	got, err = ParseLine("gauge,x,1e999")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Gauge, 1))
}

func TestParseLineSkips(t *testing.T) {
	for _, line := range []string{
		"",
		"abc",
		"a,b,",
		"# counter,commented,1",
		"counter-no-commas",
		"counter,only-one-comma",
	} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrSkipLine, "line %q", line)
	}
}

func TestParseLineInvalidKind(t *testing.T) {
	_, err := ParseLine("derive,x,1")
	var kindErr *InvalidKindError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, "derive", kindErr.Token)
	assert.Equal(t, "received invalid type: derive", err.Error())
}

func TestParseLineTruncatesLabel(t *testing.T) {
	long := strings.Repeat("a", 100)
	got, err := ParseLine("gauge," + long + ",1")
	require.NoError(t, err)
	assert.Equal(t, long[:MaxLabelLen], got.Label)

	// 截断不拆分多字节字符
	multi := strings.Repeat("a", MaxLabelLen-1) + "é"
	got, err = ParseLine("gauge," + multi + ",1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", MaxLabelLen-1), got.Label)
}

func TestParseLineIdempotent(t *testing.T) {
	line := "counter,requests,42"
	a, errA := ParseLine(line)
	b, errB := ParseLine(line)
	assert.Equal(t, errA, errB)
	assert.Equal(t, a, b)
}

func TestDecoderStream(t *testing.T) {
	input := strings.Join([]string{
		"# header",
		"counter,requests,42",
		"bogus,x,1",
		"gauge,temp,21.5",
		"x",
		"gauge,last,7", // 无换行结尾
	}, "\n")

	var got []Observation
	skipped := map[SkipReason]int{}
	dec := Decoder{OnSkip: func(line string, reason SkipReason, err error) {
		skipped[reason]++
	}}
	err := dec.Decode(strings.NewReader(input), func(o Observation) { got = append(got, o) })
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "requests", got[0].Label)
	assert.Equal(t, "temp", got[1].Label)
	assert.Equal(t, "last", got[2].Label)
	assert.Equal(t, 2, skipped[SkipMalformed])
	assert.Equal(t, 1, skipped[SkipInvalidKind])
}

func TestDecoderLineTooLong(t *testing.T) {
	long := "gauge,x," + strings.Repeat("9", 200)
	input := "gauge,ok,1\n" + long + "\ngauge,after,2\n" + long
	var got []Observation
	var skippedLines []string
	dec := Decoder{MaxLineBytes: 64, OnSkip: func(line string, reason SkipReason, err error) {
		assert.Equal(t, SkipTooLong, reason)
		assert.ErrorIs(t, err, ErrLineTooLong)
		skippedLines = append(skippedLines, line)
	}}
	err := dec.Decode(strings.NewReader(input), func(o Observation) { got = append(got, o) })
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "ok", got[0].Label)
	assert.Equal(t, "after", got[1].Label)
	// 第二个超长行在 EOF 处结束
	require.Len(t, skippedLines, 2)
	assert.True(t, strings.HasPrefix(skippedLines[0], "gauge,x,"))
	assert.LessOrEqual(t, len(skippedLines[0]), skipPreviewLen)
}

func TestDecoderKeepsReadingAfterFlood(t *testing.T) {
	var b strings.Builder
	b.WriteString("gauge,big,")
	b.WriteString(strings.Repeat("9", 1<<20))
	b.WriteString("\n")
	for i := 0; i < 100; i++ {
		b.WriteString("counter,after,1\n")
	}

	n := 0
	skipped := 0
	dec := Decoder{MaxLineBytes: 128, OnSkip: func(string, SkipReason, error) { skipped++ }}
	require.NoError(t, dec.Decode(strings.NewReader(b.String()), func(Observation) { n++ }))
	assert.Equal(t, 100, n)
	assert.Equal(t, 1, skipped)
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecoderReturnsReadError(t *testing.T) {
	boom := errors.New("pipe broken")
	var got []Observation
	dec := Decoder{}
	err := dec.Decode(&failingReader{data: "gauge,a,1\ngauge,partial,2", err: boom},
		func(o Observation) { got = append(got, o) })
	assert.ErrorIs(t, err, boom)
	// 出错前读到的完整行和残行都已交付
	require.Len(t, got, 2)
	assert.Equal(t, "partial", got[1].Label)
}

func TestParseLineSanitizesLabel(t *testing.T) {
	got, err := ParseLine("gauge,caf\xe9,1")
	require.NoError(t, err)
	assert.Equal(t, "caf\uFFFD", got.Label)
	assert.True(t, utf8.ValidString(got.Label))

	got, err = ParseLine("counter,\xff\xfe\x00bin,3")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got.Label))
	assert.Equal(t, uint64(3), got.Counter)

	// 替换后变长的标签仍按字符边界截断
	got, err = ParseLine("gauge," + strings.Repeat("a\xff", 30) + ",1")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got.Label))
	assert.LessOrEqual(t, len(got.Label), MaxLabelLen)

	_, err = ParseLine("d\xffrive,x,1")
	var kindErr *InvalidKindError
	require.True(t, errors.As(err, &kindErr))
	assert.True(t, utf8.ValidString(kindErr.Token))
}

func TestObservationValue(t *testing.T) {
	assert.Equal(t, 3.0, Observation{Kind: KindCounter, Counter: 3}.Value())
	assert.Equal(t, 1.5, Observation{Kind: KindGauge, Gauge: 1.5}.Value())
	assert.Equal(t, "counter", KindCounter.String())
	assert.Equal(t, "gauge", KindGauge.String())
}
