package cost

import (
	"math"
	"unicode/utf8"
)

type Encoding string

const (
	EncodingGSM     Encoding = "gsm"
	EncodingUnicode Encoding = "unicode"
)

const (
	GSMSegmentLimit     = 160
	UnicodeSegmentLimit = 70
	DefaultUnitPrice    = 0.03
)

type Estimate struct {
	Encoding        Encoding `json:"encoding"`
	Characters      int      `json:"characters"`
	Segments        int      `json:"segments"`
	PerSegmentLimit int      `json:"per_segment_limit"`
	Cost            float64  `json:"cost"`
}

// Estimator prices messages at a fixed per segment price.
type Estimator struct {
	unitPrice float64
}

func NewEstimator(unitPrice float64) *Estimator {
	if unitPrice < 0 {
		unitPrice = 0
	}
	return &Estimator{unitPrice: unitPrice}
}

func (e *Estimator) UnitPrice() float64 {
	return e.unitPrice
}

// Estimate counts characters as code points. Empty text still costs one segment.
func (e *Estimator) Estimate(text string) Estimate {
	enc, limit := Classify(text)
	chars := utf8.RuneCountInString(text)
	segments := int(math.Ceil(float64(max(chars, 1)) / float64(limit)))
	return Estimate{
		Encoding:        enc,
		Characters:      chars,
		Segments:        segments,
		PerSegmentLimit: limit,
		Cost:            float64(segments) * e.unitPrice,
	}
}

// EstimateBatch prices the same text sent to n destinations.
func (e *Estimator) EstimateBatch(text string, n int) Estimate {
	est := e.Estimate(text)
	est.Cost *= float64(max(n, 0))
	return est
}

// Classify returns the GSM encoding only when every code point is 7-bit ASCII.
func Classify(text string) (Encoding, int) {
	for _, r := range text {
		if r > 0x7F {
			return EncodingUnicode, UnicodeSegmentLimit
		}
	}
	return EncodingGSM, GSMSegmentLimit
}

func Calculate(text string) Estimate {
	return NewEstimator(DefaultUnitPrice).Estimate(text)
}
