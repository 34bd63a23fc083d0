// Package execplugin 以非特权用户运行配置的程序，把其输出的 "kind,label,value" 行解码为 counter/gauge 观测值
package execplugin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind 观测值类型
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

const (
	// MaxLabelLen type instance 最大字节数
	MaxLabelLen = 63
	// minLineLen 短于该长度的行直接忽略
	minLineLen = 5
	// DefaultMaxLineBytes 单行默认上限
	DefaultMaxLineBytes = 64 * 1024
	// skipPreviewLen 超长行只保留前缀用于日志
	skipPreviewLen = 128
)

var (
	// ErrSkipLine 不携带数据的行（注释、过短、缺字段）
	ErrSkipLine = errors.New("line skipped")
	// ErrLineTooLong 超过 MaxLineBytes 的行，整行丢弃
	ErrLineTooLong = errors.New("line too long")
)

// InvalidKindError 第一个字段既不是 counter 也不是 gauge
type InvalidKindError struct {
	Token string
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("received invalid type: %s", e.Token)
}

// Observation 单条解码结果
type Observation struct {
	Kind    Kind
	Label   string
	Counter uint64
	Gauge   float64
	// Time 由读取 worker 打时间戳，不信任子进程
	Time time.Time
}

// Value 统一按 float64 返回
func (o Observation) Value() float64 {
	if o.Kind == KindCounter {
		return float64(o.Counter)
	}
	return o.Gauge
}

// ParseLine 解码一行协议数据，结尾换行可有可无
func ParseLine(line string) (Observation, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < minLineLen || line[0] == '#' {
		return Observation{}, ErrSkipLine
	}

	kindToken, rest, ok := strings.Cut(line, ",")
	if !ok {
		return Observation{}, ErrSkipLine
	}
	label, valueToken, ok := strings.Cut(rest, ",")
	if !ok {
		return Observation{}, ErrSkipLine
	}

	obs := Observation{Label: sanitizeLabel(label)}
	switch {
	case strings.EqualFold(kindToken, "counter"):
		obs.Kind = KindCounter
		obs.Counter = parseCounter(valueToken)
	case strings.EqualFold(kindToken, "gauge"):
		obs.Kind = KindGauge
		obs.Gauge = parseGauge(valueToken)
	default:
		return Observation{}, &InvalidKindError{Token: strings.ToValidUTF8(kindToken, "\uFFFD")}
	}
	return obs, nil
}

// sanitizeLabel 非法 UTF-8 替换为 U+FFFD，再按字符边界截断到 MaxLabelLen
func sanitizeLabel(label string) string {
	label = strings.ToValidUTF8(label, "\uFFFD")
	if len(label) <= MaxLabelLen {
		return label
	}
	cut := MaxLabelLen
	for cut > 0 && !utf8.RuneStart(label[cut]) {
		cut--
	}
	return label[:cut]
}

// parseCounter 宽松解析：取前导整数，负数记0，溢出饱和，非数字记0
func parseCounter(s string) uint64 {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return 0
	}
	switch s[0] {
	case '-':
		return 0
	case '+':
		s = s[1:]
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return math.MaxUint64
		}
		v = v*10 + d
	}
	return v
}

// parseGauge 取最长的合法浮点前缀，非数字记0
func parseGauge(s string) float64 {
	s = strings.TrimSpace(s)
	end := floatPrefixLen(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			// 越界时 ParseFloat 已返回 ±Inf 或 ±0
			return v
		}
		return 0
	}
	return v
}

func floatPrefixLen(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for _, word := range []string{"infinity", "inf", "nan"} {
		if len(s)-i >= len(word) && strings.EqualFold(s[i:i+len(word)], word) {
			return i + len(word)
		}
	}

	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
			expDigits++
		}
		if expDigits > 0 {
			i = j
		}
	}
	return i
}

// SkipReason 跳过原因，用作指标标签
type SkipReason string

const (
	SkipMalformed   SkipReason = "malformed"
	SkipInvalidKind SkipReason = "invalid_kind"
	SkipTooLong     SkipReason = "too_long"
)

// Decoder 逐行读取子进程输出并交给 ParseLine
type Decoder struct {
	// MaxLineBytes 单行上限（含换行），<=0 时取 DefaultMaxLineBytes
	MaxLineBytes int
	// OnSkip 每个未产生观测值的行都会回调一次
	OnSkip func(line string, reason SkipReason, err error)
}

// Decode 读到 EOF 为止，每个合法行调用 fn。
// 坏行和超长行只按行跳过，只有真正的读错误才会返回
func (d *Decoder) Decode(r io.Reader, fn func(Observation)) error {
	maxLine := d.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	br := bufio.NewReaderSize(r, maxLine)

	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			preview := string(chunk[:min(len(chunk), skipPreviewLen)])
			// 丢弃到下一个换行
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			d.skip(preview, SkipTooLong, ErrLineTooLong)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}

		if len(chunk) > 0 {
			line := strings.TrimRight(string(chunk), "\r\n")
			if obs, perr := ParseLine(line); perr != nil {
				reason := SkipMalformed
				var kindErr *InvalidKindError
				if errors.As(perr, &kindErr) {
					reason = SkipInvalidKind
				}
				d.skip(line, reason, perr)
			} else {
				fn(obs)
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) skip(line string, reason SkipReason, err error) {
	if d.OnSkip != nil {
		d.OnSkip(line, reason, err)
	}
}
